package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
)

// TokenParser validates session tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// RequireUser enforces a signed session token and stores the caller in the
// request context. Browsers cannot set headers on EventSource or WebSocket
// requests, so a ?token= query parameter is accepted as a fallback.
func RequireUser(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				httpjson.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			claims, err := parser.Parse(tokenString)
			if err != nil {
				httpjson.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			principal := tenancy.Principal{
				UserID: claims.Subject,
				OrgID:  claims.OrgID,
				Role:   string(claims.Role),
				Email:  claims.Email,
			}
			recordCaller(r.Context(), principal)
			ctx := tenancy.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not listed. It must run after RequireUser.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := tenancy.PrincipalFromContext(r.Context())
			if !ok {
				httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(roles, auth.Role(p.Role)) {
				httpjson.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
