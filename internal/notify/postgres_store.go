package notify

import (
	"context"
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

// PostgresStore persists notifications and preferences.
type PostgresStore struct {
	db pgxDB
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, n *Notification) error {
	if n.OrgID == "" || n.UserID == "" {
		return ErrMissingOwner
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	var data []byte
	if len(n.Data) > 0 {
		data = n.Data
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO notifications (id, org_id, user_id, type, title, body, link, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, n.ID, n.OrgID, n.UserID, string(n.Type), n.Title, n.Body, n.Link, data).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notify: insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, orgID, userID string, opts ListOptions) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, org_id, user_id, type, title, body, link, data, read_at, created_at
		FROM notifications
		WHERE org_id = $1 AND user_id = $2 AND (NOT $3 OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $4
	`, orgID, userID, opts.UnreadOnly, opts.limit())
	if err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var (
			n    Notification
			typ  string
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.OrgID, &n.UserID, &typ, &n.Title, &n.Body, &n.Link, &data, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		n.Type = Type(typ)
		if len(data) > 0 {
			n.Data = append([]byte(nil), data...)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountUnread(ctx context.Context, orgID, userID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE org_id = $1 AND user_id = $2 AND read_at IS NULL
	`, orgID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("notify: count unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, orgID, userID, id string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, now())
		WHERE id = $1 AND org_id = $2 AND user_id = $3
	`, id, orgID, userID)
	if err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, orgID, userID string) (int, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE notifications SET read_at = now()
		WHERE org_id = $1 AND user_id = $2 AND read_at IS NULL
	`, orgID, userID)
	if err != nil {
		return 0, fmt.Errorf("notify: mark all read: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	p := Preferences{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT in_app, email, handoff_alerts, lead_alerts, message_alerts, updated_at
		FROM notification_preferences WHERE user_id = $1
	`, userID).Scan(&p.InApp, &p.Email, &p.HandoffAlerts, &p.LeadAlerts, &p.MessageAlerts, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("notify: load preferences: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SavePreferences(ctx context.Context, p Preferences) (Preferences, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO notification_preferences (user_id, in_app, email, handoff_alerts, lead_alerts, message_alerts, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			in_app = EXCLUDED.in_app,
			email = EXCLUDED.email,
			handoff_alerts = EXCLUDED.handoff_alerts,
			lead_alerts = EXCLUDED.lead_alerts,
			message_alerts = EXCLUDED.message_alerts,
			updated_at = now()
		RETURNING updated_at
	`, p.UserID, p.InApp, p.Email, p.HandoffAlerts, p.LeadAlerts, p.MessageAlerts).Scan(&p.UpdatedAt)
	if err != nil {
		return Preferences{}, fmt.Errorf("notify: save preferences: %w", err)
	}
	return p, nil
}
