package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/internal/llm"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func TestSummaryHandler(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, FromResponse("org-1", "a-1", "c-1", PurposeChat, "m", llm.Usage{InputTokens: 10, OutputTokens: 5})))
	require.NoError(t, rec.Record(ctx, FromResponse("org-1", "a-1", "c-1", PurposeBANTExtraction, "m", llm.Usage{InputTokens: 20, OutputTokens: 2})))
	require.NoError(t, rec.Record(ctx, FromResponse("org-2", "a-9", "c-9", PurposeChat, "m", llm.Usage{InputTokens: 99})))

	h := NewHandler(rec, logging.Discard())
	req := httptest.NewRequest(http.MethodGet, "/api/admin/usage?days=7", nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	w := httptest.NewRecorder()
	h.Summary(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var sum Summary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sum))
	assert.Equal(t, int64(2), sum.Total.Calls)
	assert.Equal(t, int64(37), sum.Total.TotalTokens)
	assert.Equal(t, int64(15), sum.ByPurpose[PurposeChat].TotalTokens)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), sum.Since, time.Minute)
}

func TestSummaryHandlerRejectsBadDays(t *testing.T) {
	h := NewHandler(NewMemoryRecorder(), logging.Discard())
	for _, q := range []string{"days=0", "days=abc", "days=1000"} {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/usage?"+q, nil)
		req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
		w := httptest.NewRecorder()
		h.Summary(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}
