package middleware

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// quietPaths are logged at debug so health checks do not flood the logs.
var quietPaths = map[string]bool{
	"/health":     true,
	"/api/health": true,
	"/metrics":    true,
}

// caller is filled in by RequireUser once the token is verified. The request
// logger sits outside auth and only sees it after the handler returns.
type caller struct {
	userID string
	orgID  string
}

type callerKey struct{}

func recordCaller(ctx context.Context, p tenancy.Principal) {
	if c, ok := ctx.Value(callerKey{}).(*caller); ok {
		c.userID, c.orgID = p.UserID, p.OrgID
	}
}

// RequestLogger logs each finished request with its status and caller. It
// expects chi's RequestID middleware to run first.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			who := &caller{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), callerKey{}, who)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			}
			if who.userID != "" {
				attrs = append(attrs, "user_id", who.userID, "org_id", who.orgID)
			}

			switch {
			case status >= 500:
				logger.Error("http request", attrs...)
			case status >= 400:
				logger.Warn("http request", attrs...)
			case quietPaths[r.URL.Path]:
				logger.Debug("http request", attrs...)
			default:
				logger.Info("http request", attrs...)
			}
		})
	}
}
