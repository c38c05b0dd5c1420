package notify

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreNotifications(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	n := &Notification{OrgID: "org-1", UserID: "u-1", Type: TypeTest, Title: "hi"}
	require.NoError(t, store.Insert(ctx, n))
	assert.NotEmpty(t, n.ID)

	mock.ExpectQuery("FROM notifications").WithArgs("org-1", "u-1", true, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "org_id", "user_id", "type", "title", "body", "link", "data", "read_at", "created_at"}).
			AddRow("n-1", "org-1", "u-1", "test", "hi", "", "", []byte(nil), nil, now))
	items, err := store.List(ctx, "org-1", "u-1", ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeTest, items[0].Type)

	mock.ExpectExec("UPDATE notifications").WithArgs("missing", "org-1", "u-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.MarkRead(ctx, "org-1", "u-1", "missing"), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorePreferencesDefault(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	mock.ExpectQuery("FROM notification_preferences").WithArgs("u-1").WillReturnError(pgx.ErrNoRows)
	prefs, err := store.GetPreferences(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences("u-1"), prefs)

	require.NoError(t, mock.ExpectationsWereMet())
}
