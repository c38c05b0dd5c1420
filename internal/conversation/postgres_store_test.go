package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/internal/bant"
)

var conversationRowColumns = []string{"id", "org_id", "agent_id", "user_id", "visitor_name", "mode",
	"assigned_to", "bant", "message_count", "last_message_at", "created_at", "updated_at"}

func TestPostgresStoreCreateAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), "org-1", "agent-1", "", "Dana", "ai", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	conv := &Conversation{OrgID: "org-1", AgentID: "agent-1", VisitorName: "Dana"}
	require.NoError(t, store.Create(ctx, conv))
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, ModeAI, conv.Mode)

	budget := "$10k"
	memory, _ := json.Marshal(bant.Memory{Budget: &budget})
	mock.ExpectQuery("FROM conversations WHERE id = \\$1 AND org_id = \\$2").
		WithArgs(conv.ID, "org-1").
		WillReturnRows(pgxmock.NewRows(conversationRowColumns).
			AddRow(conv.ID, "org-1", "agent-1", "", "Dana", "human", "op-1", memory, 3, nil, now, now))
	got, err := store.Get(ctx, "org-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeHuman, got.Mode)
	assert.Equal(t, "op-1", got.AssignedTo)
	require.NotNil(t, got.BANT.Budget)
	assert.Equal(t, budget, *got.BANT.Budget)

	mock.ExpectQuery("FROM conversations WHERE id = \\$1 AND org_id = \\$2").
		WithArgs("missing", "org-1").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(ctx, "org-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSetModeConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE conversations").
		WithArgs("conv-1", "org-1", []string{"pending_human"}, "human", true, "op-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM conversations WHERE id = \\$1 AND org_id = \\$2").
		WithArgs("conv-1", "org-1").
		WillReturnRows(pgxmock.NewRows(conversationRowColumns).
			AddRow("conv-1", "org-1", "agent-1", "", "", "ai", "", []byte(`{}`), 0, nil, now, now))

	op := "op-1"
	_, err = store.SetMode(context.Background(), "org-1", "conv-1", []Mode{ModePendingHuman}, ModeHuman, &op)
	assert.ErrorIs(t, err, ErrModeConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendMessageUnknownConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	mock.ExpectQuery("WITH conv AS").WillReturnError(pgx.ErrNoRows)
	err = store.AppendMessage(context.Background(), "org-1", &Message{ConversationID: "gone", Role: RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreSetModeIsCompareAndSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv := &Conversation{OrgID: "org-1", AgentID: "agent-1"}
	require.NoError(t, store.Create(ctx, conv))

	_, err := store.SetMode(ctx, "org-1", conv.ID, []Mode{ModePendingHuman}, ModeHuman, nil)
	assert.ErrorIs(t, err, ErrModeConflict)

	updated, err := store.SetMode(ctx, "org-1", conv.ID, []Mode{ModeAI}, ModePendingHuman, nil)
	require.NoError(t, err)
	assert.Equal(t, ModePendingHuman, updated.Mode)

	_, err = store.SetMode(ctx, "org-2", conv.ID, []Mode{ModePendingHuman}, ModeHuman, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.List(ctx, "org-1", ListFilter{Mode: ModePendingHuman})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = store.List(ctx, "org-1", ListFilter{Mode: ModeHuman})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPostgresStoreMergeBANTLocksRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	now := time.Now().UTC()

	timeline := "next month"
	stored, _ := json.Marshal(bant.Memory{Timeline: &timeline, Confidence: map[bant.Dimension]float64{bant.Timeline: 0.8}})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT bant FROM conversations WHERE id = \\$1 AND org_id = \\$2 FOR UPDATE").
		WithArgs("conv-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"bant"}).AddRow(stored))
	mock.ExpectExec("UPDATE conversations SET bant = \\$3").
		WithArgs("conv-1", "org-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	memory, changed, err := store.MergeBANT(context.Background(), "org-1", "conv-1",
		[]bant.Signal{{Dimension: bant.Budget, Value: "$10k", Confidence: 0.7, Source: bant.SourceLLM}}, now)
	require.NoError(t, err)
	assert.Equal(t, []bant.Dimension{bant.Budget}, changed)
	require.NotNil(t, memory.Budget)
	require.NotNil(t, memory.Timeline)
	assert.Equal(t, "next month", *memory.Timeline)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreMergeBANTNoChangeSkipsWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	budget := "$10k"
	stored, _ := json.Marshal(bant.Memory{Budget: &budget, Confidence: map[bant.Dimension]float64{bant.Budget: 0.9}})
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("conv-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"bant"}).AddRow(stored))
	mock.ExpectRollback()

	memory, changed, err := store.MergeBANT(context.Background(), "org-1", "conv-1",
		[]bant.Signal{{Dimension: bant.Budget, Value: "$5k", Confidence: 0.5, Source: bant.SourceHeuristic}}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, changed)
	require.NotNil(t, memory.Budget)
	assert.Equal(t, budget, *memory.Budget)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("gone", "org-1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	_, _, err = store.MergeBANT(context.Background(), "org-1", "gone", nil, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreMergeBANTConcurrentWriters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv := &Conversation{OrgID: "org-1", AgentID: "agent-1"}
	require.NoError(t, store.Create(ctx, conv))

	var wg sync.WaitGroup
	for _, d := range bant.Dimensions {
		wg.Add(1)
		go func(d bant.Dimension) {
			defer wg.Done()
			_, _, err := store.MergeBANT(ctx, "org-1", conv.ID, []bant.Signal{{Dimension: d, Value: "set", Confidence: 0.8}}, time.Now())
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	got, err := store.Get(ctx, "org-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, len(bant.Dimensions), got.BANT.Filled())

	_, _, err = store.MergeBANT(ctx, "org-2", conv.ID, nil, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
