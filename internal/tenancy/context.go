package tenancy

import "context"

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID string
	OrgID  string
	Role   string
	Email  string
}

// scope is the request's tenant data. It is copied on every change so a
// derived context never mutates its parent.
type scope struct {
	orgID     string
	principal *Principal
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// WithOrgID scopes ctx to an org without an authenticated caller, as used by
// workers and tests.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	s := scopeFrom(ctx)
	s.orgID = orgID
	return context.WithValue(ctx, scopeKey{}, s)
}

// OrgIDFromContext reports false when no org, or an empty one, is set.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	s := scopeFrom(ctx)
	return s.orgID, s.orgID != ""
}

// WithPrincipal stores the caller and scopes ctx to the caller's org.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	s := scopeFrom(ctx)
	s.principal = &p
	if p.OrgID != "" {
		s.orgID = p.OrgID
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	s := scopeFrom(ctx)
	if s.principal == nil || s.principal.UserID == "" {
		return Principal{}, false
	}
	return *s.principal, true
}
