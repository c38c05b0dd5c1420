package usage

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/internal/llm"
)

func TestFromResponseFillsTotal(t *testing.T) {
	rec := FromResponse("org-1", "a-1", "c-1", PurposeChat, "m", llm.Usage{InputTokens: 10, OutputTokens: 5})
	assert.Equal(t, int32(15), rec.TotalTokens)
	assert.Equal(t, PurposeChat, rec.Purpose)
}

func TestMemoryRecorderSummarize(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, rec.Record(ctx, Record{OrgID: "org-1", Purpose: PurposeChat, InputTokens: 10, OutputTokens: 20, TotalTokens: 30}))
	require.NoError(t, rec.Record(ctx, Record{OrgID: "org-1", Purpose: PurposeChat, InputTokens: 1, OutputTokens: 2, TotalTokens: 3}))
	require.NoError(t, rec.Record(ctx, Record{OrgID: "org-1", Purpose: PurposeBANTExtraction, InputTokens: 50, TotalTokens: 50}))
	require.NoError(t, rec.Record(ctx, Record{OrgID: "org-1", Purpose: PurposeChat, TotalTokens: 999, CreatedAt: old}))
	require.NoError(t, rec.Record(ctx, Record{OrgID: "org-2", Purpose: PurposeChat, TotalTokens: 999}))

	sum, err := rec.Summarize(ctx, "org-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Totals{Calls: 2, InputTokens: 11, OutputTokens: 22, TotalTokens: 33}, sum.ByPurpose[PurposeChat])
	assert.Equal(t, int64(50), sum.ByPurpose[PurposeBANTExtraction].TotalTokens)
	assert.Equal(t, int64(83), sum.Total.TotalTokens)
	assert.Equal(t, int64(3), sum.Total.Calls)
}

func TestPostgresRecorder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	rec := newPostgresRecorderWithDB(mock)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO usage_records").
		WithArgs(pgxmock.AnyArg(), "org-1", "a-1", "", "m", "chat", int32(1), int32(2), int32(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, rec.Record(ctx, Record{OrgID: "org-1", AgentID: "a-1", Model: "m", Purpose: PurposeChat, InputTokens: 1, OutputTokens: 2, TotalTokens: 3}))

	since := time.Now().Add(-time.Hour)
	mock.ExpectQuery("FROM usage_records").WithArgs("org-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"purpose", "count", "in", "out", "total"}).
			AddRow("chat", int64(2), int64(10), int64(20), int64(30)).
			AddRow("bant_extraction", int64(1), int64(5), int64(1), int64(6)))
	sum, err := rec.Summarize(ctx, "org-1", since)
	require.NoError(t, err)
	assert.Equal(t, int64(36), sum.Total.TotalTokens)
	assert.Equal(t, int64(2), sum.ByPurpose[PurposeChat].Calls)

	require.NoError(t, mock.ExpectationsWereMet())
}
