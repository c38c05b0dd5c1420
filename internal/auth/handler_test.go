package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func TestLoginHandler(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.EnsureSeedAdmin(context.Background(), "Acme", "owner@example.com", "correct-horse")
	require.NoError(t, err)
	h := NewHandler(svc, logging.Discard())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"owner@example.com","password":"correct-horse"}`))
	h.Login(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token string `json:"token"`
		User  struct {
			Email        string `json:"email"`
			PasswordHash string `json:"passwordHash"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, "owner@example.com", body.User.Email)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"owner@example.com","password":"nope"}`))
	h.Login(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":""}`))
	h.Login(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeHandler(t *testing.T) {
	svc, _ := newTestService(t)
	owner, err := svc.EnsureSeedAdmin(context.Background(), "Acme", "owner@example.com", "correct-horse")
	require.NoError(t, err)
	h := NewHandler(svc, logging.Discard())

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ctx := tenancy.WithPrincipal(context.Background(), tenancy.Principal{UserID: owner.ID, OrgID: owner.OrgID})
	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil).WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), owner.ID)
}
