package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Envelope is one event as stored in the outbox and published downstream.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	OrgID     string          `json:"orgId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	Attempts  int             `json:"-"`
}

// DeliveryHandler pushes an envelope to a downstream transport.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

// DefaultMaxAttempts parks an event after this many failed deliveries.
const DefaultMaxAttempts = 10

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore writes events next to the data they describe so a broker outage
// never loses them.
type OutboxStore struct {
	db          outboxDB
	maxAttempts int
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newOutboxStoreWithDB(pool)
}

func newOutboxStoreWithDB(db outboxDB) *OutboxStore {
	return &OutboxStore{db: db, maxAttempts: DefaultMaxAttempts}
}

// Emit implements Emitter.
func (s *OutboxStore) Emit(ctx context.Context, orgID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO outbox (id, org_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), orgID, eventType, data); err != nil {
		return fmt.Errorf("events: enqueue %s: %w", eventType, err)
	}
	return nil
}

// Pending returns undelivered events that have not exhausted their attempts,
// oldest first.
func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]Envelope, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, org_id, type, payload, created_at, attempts
		FROM outbox
		WHERE delivered_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2
	`, s.maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("events: load pending: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var env Envelope
		var payload []byte
		if err := rows.Scan(&env.ID, &env.OrgID, &env.Type, &payload, &env.CreatedAt, &env.Attempts); err != nil {
			return nil, fmt.Errorf("events: scan pending: %w", err)
		}
		env.Payload = append(json.RawMessage(nil), payload...)
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *OutboxStore) Delivered(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE outbox SET delivered_at = now(), last_error = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`, id); err != nil {
		return fmt.Errorf("events: mark delivered: %w", err)
	}
	return nil
}

// Failed counts a delivery attempt and keeps the last error for inspection.
func (s *OutboxStore) Failed(ctx context.Context, id uuid.UUID, cause error) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND delivered_at IS NULL
	`, id, cause.Error()); err != nil {
		return fmt.Errorf("events: record failure: %w", err)
	}
	return nil
}

type outboxQueue interface {
	Pending(ctx context.Context, limit int) ([]Envelope, error)
	Delivered(ctx context.Context, id uuid.UUID) error
	Failed(ctx context.Context, id uuid.UUID, cause error) error
}

// Deliverer relays outbox events to a handler on an interval.
type Deliverer struct {
	queue    outboxQueue
	handler  DeliveryHandler
	logger   *logging.Logger
	batch    int
	interval time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	return newDeliverer(store, handler, logger)
}

func newDeliverer(queue outboxQueue, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{queue: queue, handler: handler, logger: logger, batch: 50, interval: 2 * time.Second}
}

// WithInterval sets the polling interval.
func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start relays until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.queue == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.catchUp(ctx)
		}
	}
}

// catchUp keeps relaying full batches so a backlog drains in one tick.
func (d *Deliverer) catchUp(ctx context.Context) {
	for ctx.Err() == nil {
		n, fetched := d.relay(ctx)
		if fetched < d.batch || n == 0 {
			return
		}
	}
}

// relay handles one batch and returns how many events were delivered and
// how many were fetched.
func (d *Deliverer) relay(ctx context.Context) (delivered, fetched int) {
	pending, err := d.queue.Pending(ctx, d.batch)
	if err != nil {
		d.logger.Error("outbox load failed", "error", err)
		return 0, 0
	}
	for _, env := range pending {
		logger := d.logger.With("event_id", env.ID.String(), "event_type", env.Type)
		if err := d.handler.Handle(ctx, env); err != nil {
			logger.Warn("event delivery failed", "error", err, "attempt", env.Attempts+1)
			if ferr := d.queue.Failed(ctx, env.ID, err); ferr != nil {
				logger.Error("outbox failure not recorded", "error", ferr)
			}
			continue
		}
		if err := d.queue.Delivered(ctx, env.ID); err != nil {
			logger.Error("outbox delivery not recorded", "error", err)
			continue
		}
		delivered++
	}
	return delivered, len(pending)
}
