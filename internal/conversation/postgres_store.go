package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/agentdesk/internal/bant"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore keeps conversations and messages in Postgres. BANT memory is
// a JSONB column on the conversation row.
type PostgresStore struct {
	db pgxDB
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const conversationColumns = `id, org_id, agent_id, COALESCE(user_id, ''), visitor_name, mode,
	COALESCE(assigned_to, ''), bant, message_count, last_message_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.OrgID == "" || conv.AgentID == "" {
		return invalid("conversation requires org and agent")
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Mode == "" {
		conv.Mode = ModeAI
	}
	memory, err := json.Marshal(conv.BANT)
	if err != nil {
		return fmt.Errorf("conversation: encode bant: %w", err)
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, org_id, agent_id, user_id, visitor_name, mode, bant)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		RETURNING created_at, updated_at
	`, conv.ID, conv.OrgID, conv.AgentID, conv.UserID, conv.VisitorName, string(conv.Mode), memory).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("conversation: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID, id string) (*Conversation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND org_id = $2`, id, orgID)
	return scanConversation(row)
}

func (s *PostgresStore) List(ctx context.Context, orgID string, filter ListFilter) ([]*Conversation, error) {
	filter = filter.normalized()
	where := []string{"org_id = $1"}
	args := []any{orgID}
	if filter.Mode != "" {
		args = append(args, string(filter.Mode))
		where = append(where, fmt.Sprintf("mode = $%d", len(args)))
	}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM conversations WHERE %s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		conversationColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	defer rows.Close()

	out := []*Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// AppendMessage inserts the message and bumps the conversation counters in
// one statement. The insert only happens when the conversation exists in org.
func (s *PostgresStore) AppendMessage(ctx context.Context, orgID string, msg *Message) error {
	if msg == nil || msg.ConversationID == "" {
		return invalid("message requires a conversation")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	err := s.db.QueryRow(ctx, `
		WITH conv AS (
			UPDATE conversations
			SET message_count = message_count + 1, last_message_at = now(), updated_at = now()
			WHERE id = $2 AND org_id = $3
			RETURNING id
		)
		INSERT INTO messages (id, conversation_id, org_id, role, content, sender_id, input_tokens, output_tokens)
		SELECT $1, conv.id, $3, $4, $5, NULLIF($6, ''), $7, $8 FROM conv
		RETURNING created_at
	`, msg.ID, msg.ConversationID, orgID, string(msg.Role), msg.Content, msg.SenderID, msg.InputTokens, msg.OutputTokens).
		Scan(&msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Messages(ctx context.Context, orgID, conversationID string, limit int) ([]Message, error) {
	if _, err := s.Get(ctx, orgID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, COALESCE(sender_id, ''), input_tokens, output_tokens, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1 AND org_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`, conversationID, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.SenderID, &m.InputTokens, &m.OutputTokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MergeBANT locks the conversation row so concurrent chat turns and
// qualification jobs merge onto the latest memory.
func (s *PostgresStore) MergeBANT(ctx context.Context, orgID, id string, signals []bant.Signal, now time.Time) (bant.Memory, []bant.Dimension, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return bant.Memory{}, nil, fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT bant FROM conversations WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return bant.Memory{}, nil, ErrNotFound
	}
	if err != nil {
		return bant.Memory{}, nil, fmt.Errorf("conversation: lock bant: %w", err)
	}
	var current bant.Memory
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &current); err != nil {
			return bant.Memory{}, nil, fmt.Errorf("conversation: decode bant: %w", err)
		}
	}

	memory, changed := bant.Merge(current, signals, now)
	if len(changed) == 0 {
		return current, nil, nil
	}
	data, err := json.Marshal(memory)
	if err != nil {
		return bant.Memory{}, nil, fmt.Errorf("conversation: encode bant: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET bant = $3, updated_at = now() WHERE id = $1 AND org_id = $2`, id, orgID, data); err != nil {
		return bant.Memory{}, nil, fmt.Errorf("conversation: save bant: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return bant.Memory{}, nil, fmt.Errorf("conversation: commit bant: %w", err)
	}
	return memory, changed, nil
}

func (s *PostgresStore) SetMode(ctx context.Context, orgID, id string, from []Mode, to Mode, assignee *string) (*Conversation, error) {
	if !to.Valid() {
		return nil, invalid("unknown mode")
	}
	allowed := make([]string, len(from))
	for i, m := range from {
		allowed[i] = string(m)
	}
	setAssignee := assignee != nil
	var assigned string
	if setAssignee {
		assigned = *assignee
	}
	row := s.db.QueryRow(ctx, `
		UPDATE conversations
		SET mode = $4,
			assigned_to = CASE WHEN $5 THEN NULLIF($6, '') ELSE assigned_to END,
			updated_at = now()
		WHERE id = $1 AND org_id = $2 AND mode = ANY($3)
		RETURNING `+conversationColumns,
		id, orgID, allowed, string(to), setAssignee, assigned)
	conv, err := scanConversation(row)
	if !errors.Is(err, ErrNotFound) {
		return conv, err
	}
	// No row updated: either the conversation is missing or its mode moved.
	if _, getErr := s.Get(ctx, orgID, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrModeConflict
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		c      Conversation
		mode   string
		memory []byte
	)
	err := row.Scan(&c.ID, &c.OrgID, &c.AgentID, &c.UserID, &c.VisitorName, &mode,
		&c.AssignedTo, &memory, &c.MessageCount, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: scan: %w", err)
	}
	c.Mode = Mode(mode)
	if len(memory) > 0 {
		if err := json.Unmarshal(memory, &c.BANT); err != nil {
			return nil, fmt.Errorf("conversation: decode bant: %w", err)
		}
	}
	return &c, nil
}

var _ Store = (*PostgresStore)(nil)
