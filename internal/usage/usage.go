// Package usage records LLM token consumption per organization.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/agentdesk/internal/llm"
)

// Purpose says why tokens were spent.
type Purpose string

const (
	PurposeChat           Purpose = "chat"
	PurposeBANTExtraction Purpose = "bant_extraction"
)

// Record is one LLM call.
type Record struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"orgId"`
	AgentID        string    `json:"agentId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Model          string    `json:"model"`
	Purpose        Purpose   `json:"purpose"`
	InputTokens    int32     `json:"inputTokens"`
	OutputTokens   int32     `json:"outputTokens"`
	TotalTokens    int32     `json:"totalTokens"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FromResponse builds a record from an LLM usage block.
func FromResponse(orgID, agentID, conversationID string, purpose Purpose, model string, u llm.Usage) Record {
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	return Record{
		OrgID:          orgID,
		AgentID:        agentID,
		ConversationID: conversationID,
		Model:          model,
		Purpose:        purpose,
		InputTokens:    u.InputTokens,
		OutputTokens:   u.OutputTokens,
		TotalTokens:    total,
	}
}

// Totals aggregates token counts.
type Totals struct {
	Calls        int64 `json:"calls"`
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

func (t *Totals) add(other Totals) {
	t.Calls += other.Calls
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.TotalTokens += other.TotalTokens
}

// Summary is token usage since a point in time.
type Summary struct {
	Since     time.Time          `json:"since"`
	ByPurpose map[Purpose]Totals `json:"byPurpose"`
	Total     Totals             `json:"total"`
}

// Recorder persists usage records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Summarize(ctx context.Context, orgID string, since time.Time) (Summary, error)
}

// MemoryRecorder keeps records in a slice.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of everything recorded.
func (m *MemoryRecorder) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

func (m *MemoryRecorder) Summarize(_ context.Context, orgID string, since time.Time) (Summary, error) {
	sum := Summary{Since: since, ByPurpose: map[Purpose]Totals{}}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.OrgID != orgID || rec.CreatedAt.Before(since) {
			continue
		}
		t := sum.ByPurpose[rec.Purpose]
		t.add(Totals{Calls: 1, InputTokens: int64(rec.InputTokens), OutputTokens: int64(rec.OutputTokens), TotalTokens: int64(rec.TotalTokens)})
		sum.ByPurpose[rec.Purpose] = t
	}
	for _, t := range sum.ByPurpose {
		sum.Total.add(t)
	}
	return sum, nil
}

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRecorder writes to the usage_records table.
type PostgresRecorder struct {
	db pgxDB
}

func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	if pool == nil {
		panic("usage: pgx pool required")
	}
	return &PostgresRecorder{db: pool}
}

func newPostgresRecorderWithDB(db pgxDB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (p *PostgresRecorder) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO usage_records (id, org_id, agent_id, conversation_id, model, purpose, input_tokens, output_tokens, total_tokens)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9)
	`, rec.ID, rec.OrgID, rec.AgentID, rec.ConversationID, rec.Model, string(rec.Purpose),
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens)
	if err != nil {
		return fmt.Errorf("usage: insert record: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) Summarize(ctx context.Context, orgID string, since time.Time) (Summary, error) {
	rows, err := p.db.Query(ctx, `
		SELECT purpose, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM usage_records
		WHERE org_id = $1 AND created_at >= $2
		GROUP BY purpose
	`, orgID, since)
	if err != nil {
		return Summary{}, fmt.Errorf("usage: summarize: %w", err)
	}
	defer rows.Close()

	sum := Summary{Since: since, ByPurpose: map[Purpose]Totals{}}
	for rows.Next() {
		var (
			purpose string
			t       Totals
		)
		if err := rows.Scan(&purpose, &t.Calls, &t.InputTokens, &t.OutputTokens, &t.TotalTokens); err != nil {
			return Summary{}, fmt.Errorf("usage: scan summary: %w", err)
		}
		sum.ByPurpose[Purpose(purpose)] = t
		sum.Total.add(t)
	}
	return sum, rows.Err()
}
