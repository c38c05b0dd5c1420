package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const leadColumns = `id, org_id, conversation_id, agent_id, name, email, phone,
	budget, authority, need, timeline, score, status, created_at, updated_at, qualified_at`

// Upsert inserts the lead or updates the row for the same conversation.
func (r *PostgresRepository) Upsert(ctx context.Context, lead *Lead) error {
	if lead.OrgID == "" || lead.ConversationID == "" {
		return ErrMissingKeys
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO leads (id, org_id, conversation_id, agent_id, name, email, phone,
			budget, authority, need, timeline, score, status, qualified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (org_id, conversation_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			budget = COALESCE(EXCLUDED.budget, leads.budget),
			authority = COALESCE(EXCLUDED.authority, leads.authority),
			need = COALESCE(EXCLUDED.need, leads.need),
			timeline = COALESCE(EXCLUDED.timeline, leads.timeline),
			score = EXCLUDED.score,
			status = EXCLUDED.status,
			qualified_at = COALESCE(leads.qualified_at, EXCLUDED.qualified_at),
			updated_at = now()
		RETURNING id, created_at, updated_at, qualified_at
	`, lead.ID, lead.OrgID, lead.ConversationID, lead.AgentID, lead.Name, lead.Email, lead.Phone,
		lead.Budget, lead.Authority, lead.Need, lead.Timeline, lead.Score, string(lead.Status), lead.QualifiedAt,
	).Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt, &lead.QualifiedAt)
	if err != nil {
		return fmt.Errorf("leads: upsert failed: %w", err)
	}
	return nil
}

// MarkQualified only matches a row whose qualified_at is still null, so
// overlapping syncs see exactly one success.
func (r *PostgresRepository) MarkQualified(ctx context.Context, orgID, id string, at time.Time) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE leads SET qualified_at = $3, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND qualified_at IS NULL
	`, id, orgID, at)
	if err != nil {
		return false, fmt.Errorf("leads: mark qualified: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, orgID, id string) (*Lead, error) {
	row := r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND org_id = $2`, id, orgID)
	return scanLead(row)
}

func (r *PostgresRepository) GetByConversation(ctx context.Context, orgID, conversationID string) (*Lead, error) {
	row := r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE org_id = $1 AND conversation_id = $2`, orgID, conversationID)
	return scanLead(row)
}

func (r *PostgresRepository) List(ctx context.Context, orgID string, filter ListFilter) ([]*Lead, error) {
	filter = filter.normalized()

	where := []string{"org_id = $1"}
	args := []any{orgID}
	if filter.ConversationID != "" {
		args = append(args, filter.ConversationID)
		where = append(where, fmt.Sprintf("conversation_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		leadColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		l      Lead
		status string
	)
	err := row.Scan(&l.ID, &l.OrgID, &l.ConversationID, &l.AgentID, &l.Name, &l.Email, &l.Phone,
		&l.Budget, &l.Authority, &l.Need, &l.Timeline, &l.Score, &status, &l.CreatedAt, &l.UpdatedAt, &l.QualifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: scan failed: %w", err)
	}
	l.Status = Status(status)
	return &l, nil
}
