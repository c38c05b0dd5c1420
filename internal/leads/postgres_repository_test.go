package leads

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadCols = []string{"id", "org_id", "conversation_id", "agent_id", "name", "email", "phone",
	"budget", "authority", "need", "timeline", "score", "status", "created_at", "updated_at", "qualified_at"}

func TestPostgresUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO leads").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at", "qualified_at"}).AddRow("lead-1", now, now, nil))

	lead := &Lead{OrgID: "org-1", ConversationID: "c-1", Status: StatusNew}
	require.NoError(t, repo.Upsert(context.Background(), lead))
	assert.Equal(t, "lead-1", lead.ID)
	assert.Equal(t, now, lead.UpdatedAt)
	assert.Nil(t, lead.QualifiedAt)

	assert.ErrorIs(t, repo.Upsert(context.Background(), &Lead{}), ErrMissingKeys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkQualifiedOnlyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE leads SET qualified_at = \\$3").
		WithArgs("lead-1", "org-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("qualified_at IS NULL").
		WithArgs("lead-1", "org-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	first, err := repo.MarkQualified(context.Background(), "org-1", "lead-1", at)
	require.NoError(t, err)
	assert.True(t, first)
	second, err := repo.MarkQualified(context.Background(), "org-1", "lead-1", at)
	require.NoError(t, err)
	assert.False(t, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListBuildsFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	now := time.Now().UTC()
	budget := "$10k"
	mock.ExpectQuery(`FROM leads WHERE org_id = \$1 AND conversation_id = \$2 AND status = \$3`).
		WithArgs("org-1", "c-1", "partial", 50, 0).
		WillReturnRows(pgxmock.NewRows(leadCols).
			AddRow("lead-1", "org-1", "c-1", "a-1", "", "", "", &budget, nil, nil, nil, 25, "partial", now, now, nil))

	leads, err := repo.List(context.Background(), "org-1", ListFilter{ConversationID: "c-1", Status: StatusPartial})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "$10k", *leads[0].Budget)
	assert.Nil(t, leads[0].Authority)

	mock.ExpectQuery("FROM leads WHERE id").WithArgs("missing", "org-1").WillReturnRows(pgxmock.NewRows(leadCols))
	_, err = repo.GetByID(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
