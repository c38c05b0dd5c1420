package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrgScope(t *testing.T) {
	tests := []struct {
		name   string
		ctx    context.Context
		wantID string
		wantOK bool
	}{
		{"unset", context.Background(), "", false},
		{"empty", WithOrgID(context.Background(), ""), "", false},
		{"set", WithOrgID(context.Background(), "org-123"), "org-123", true},
		{"from principal", WithPrincipal(context.Background(), Principal{UserID: "u-1", OrgID: "org-9"}), "org-9", true},
		{"principal without org keeps org", WithPrincipal(WithOrgID(context.Background(), "org-1"), Principal{UserID: "u-1"}), "org-1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := OrgIDFromContext(tt.ctx)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestPrincipalScope(t *testing.T) {
	parent := WithOrgID(context.Background(), "org-1")
	child := WithPrincipal(parent, Principal{UserID: "u-1", OrgID: "org-2", Role: "admin"})

	p, ok := PrincipalFromContext(child)
	assert.True(t, ok)
	assert.Equal(t, "admin", p.Role)

	_, ok = PrincipalFromContext(parent)
	assert.False(t, ok, "parent context must not see the child's principal")
	org, _ := OrgIDFromContext(parent)
	assert.Equal(t, "org-1", org)

	_, ok = PrincipalFromContext(WithPrincipal(context.Background(), Principal{OrgID: "org-1"}))
	assert.False(t, ok, "a principal needs a user id")
}
