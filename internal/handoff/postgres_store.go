package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists handoffs in the handoffs table.
type PostgresStore struct {
	db pgxDB
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("handoff: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const handoffColumns = `id, org_id, conversation_id, reason, status, requested_by,
	COALESCE(accepted_by, ''), requested_at, accepted_at, resolved_at, escalated_at`

func (s *PostgresStore) Create(ctx context.Context, h *Handoff) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO handoffs (id, org_id, conversation_id, reason, status, requested_by, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.OrgID, h.ConversationID, h.Reason, string(h.Status), h.RequestedBy, h.RequestedAt)
	if err != nil {
		return fmt.Errorf("handoff: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Active(ctx context.Context, orgID, conversationID string) (*Handoff, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+handoffColumns+` FROM handoffs
		WHERE org_id = $1 AND conversation_id = $2 AND status <> 'resolved'
		ORDER BY requested_at DESC LIMIT 1
	`, orgID, conversationID)
	return scanHandoff(row)
}

func (s *PostgresStore) Save(ctx context.Context, h *Handoff) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE handoffs
		SET status = $3, accepted_by = NULLIF($4, ''), accepted_at = $5, resolved_at = $6, escalated_at = $7
		WHERE id = $1 AND org_id = $2
	`, h.ID, h.OrgID, string(h.Status), h.AcceptedBy, h.AcceptedAt, h.ResolvedAt, h.EscalatedAt)
	if err != nil {
		return fmt.Errorf("handoff: update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, orgID string, status Status, limit int) ([]*Handoff, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+handoffColumns+` FROM handoffs
		WHERE org_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY requested_at DESC
		LIMIT $3
	`, orgID, string(status), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("handoff: list: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) Overdue(ctx context.Context, before time.Time) ([]*Handoff, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+handoffColumns+` FROM handoffs
		WHERE status = 'requested' AND escalated_at IS NULL AND requested_at < $1
		ORDER BY requested_at
		LIMIT 500
	`, before)
	if err != nil {
		return nil, fmt.Errorf("handoff: overdue: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) MarkEscalated(ctx context.Context, id string, at time.Time) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE handoffs SET escalated_at = $2
		WHERE id = $1 AND status = 'requested' AND escalated_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("handoff: mark escalated: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func collect(rows pgx.Rows) ([]*Handoff, error) {
	defer rows.Close()
	out := []*Handoff{}
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHandoff(row pgx.Row) (*Handoff, error) {
	var (
		h      Handoff
		status string
	)
	err := row.Scan(&h.ID, &h.OrgID, &h.ConversationID, &h.Reason, &status, &h.RequestedBy,
		&h.AcceptedBy, &h.RequestedAt, &h.AcceptedAt, &h.ResolvedAt, &h.EscalatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("handoff: scan: %w", err)
	}
	h.Status = Status(status)
	return &h, nil
}

var _ Store = (*PostgresStore)(nil)
