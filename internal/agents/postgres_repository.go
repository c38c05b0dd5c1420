package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

// PostgresRepository stores agents with knowledge files as JSONB.
type PostgresRepository struct {
	db pgxDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("agents: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const agentColumns = `id, org_id, name, description, system_prompt, greeting, model, temperature,
	qualification_enabled, handoff_enabled, knowledge_files, created_by, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	files := agent.KnowledgeFiles
	if files == nil {
		files = []KnowledgeFile{}
	}
	knowledge, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("agents: encode knowledge files: %w", err)
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO agents (id, org_id, name, description, system_prompt, greeting, model, temperature,
			qualification_enabled, handoff_enabled, knowledge_files, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, agent.ID, agent.OrgID, agent.Name, agent.Description, agent.SystemPrompt, agent.Greeting, agent.Model,
		agent.Temperature, agent.QualificationEnabled, agent.HandoffEnabled, knowledge, agent.CreatedBy,
	).Scan(&agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("agents: insert agent: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, orgID, id string) (*Agent, error) {
	row := r.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1 AND org_id = $2`, id, orgID)
	return scanAgent(row)
}

func (r *PostgresRepository) List(ctx context.Context, orgID string) ([]*Agent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("agents: list agents: %w", err)
	}
	defer rows.Close()

	out := []*Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

func scanAgent(row pgx.Row) (*Agent, error) {
	var (
		a         Agent
		knowledge []byte
	)
	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.Description, &a.SystemPrompt, &a.Greeting, &a.Model, &a.Temperature,
		&a.QualificationEnabled, &a.HandoffEnabled, &knowledge, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agents: scan agent: %w", err)
	}
	if len(knowledge) > 0 {
		if err := json.Unmarshal(knowledge, &a.KnowledgeFiles); err != nil {
			return nil, fmt.Errorf("agents: decode knowledge files: %w", err)
		}
	}
	return &a, nil
}
