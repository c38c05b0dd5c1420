package agents

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepositoryRoundTripsKnowledge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO agents").
		WithArgs(pgxmock.AnyArg(), "org-1", "Sales", "", "", "", "m", float32(0.4), true, false, []byte(`[]`), "u-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	agent := &Agent{OrgID: "org-1", Name: "Sales", Model: "m", Temperature: 0.4, QualificationEnabled: true, CreatedBy: "u-1"}
	require.NoError(t, repo.Create(context.Background(), agent))
	assert.NotEmpty(t, agent.ID)

	cols := []string{"id", "org_id", "name", "description", "system_prompt", "greeting", "model", "temperature",
		"qualification_enabled", "handoff_enabled", "knowledge_files", "created_by", "created_at", "updated_at"}
	files := []byte(`[{"name":"faq.md","key":"agents/org-1/a-1/faq.md","contentType":"text/markdown","size":12,"excerpt":"hi"}]`)
	mock.ExpectQuery("FROM agents WHERE id").WithArgs("a-1", "org-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("a-1", "org-1", "Sales", "", "", "", "m", float32(0.4), true, true, files, "u-1", now, now))
	got, err := repo.Get(context.Background(), "org-1", "a-1")
	require.NoError(t, err)
	require.Len(t, got.KnowledgeFiles, 1)
	assert.Equal(t, "hi", got.KnowledgeFiles[0].Excerpt)

	mock.ExpectQuery("FROM agents WHERE id").WithArgs("missing", "org-1").WillReturnRows(pgxmock.NewRows(cols))
	_, err = repo.Get(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
