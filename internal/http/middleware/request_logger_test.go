package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(logging.NewWriter(&buf, "info", "json"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, float64(http.StatusTeapot), lines[0]["status"])
	assert.Equal(t, float64(len("short and stout")), lines[0]["bytes"])
	assert.NotContains(t, lines[0], "user_id")
}

func TestRequestLoggerQuietsHealthChecks(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(logging.NewWriter(&buf, "info", "json"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Empty(t, buf.String())
}

func TestRequestLoggerIncludesAuthenticatedCaller(t *testing.T) {
	var buf bytes.Buffer
	issuer := auth.NewTokenIssuer("secret", time.Hour)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequestLogger(logging.NewWriter(&buf, "info", "json"))(RequireUser(issuer)(inner))

	req := httptest.NewRequest(http.MethodGet, "/api/handoffs", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, issuer, auth.RoleAgent))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "u-1", lines[0]["user_id"])
	assert.Equal(t, "org-1", lines[0]["org_id"])
}
