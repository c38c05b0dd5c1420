package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

// LogEmitter logs events instead of persisting them. When a handler is set
// each event is also delivered synchronously.
type LogEmitter struct {
	logger  *logging.Logger
	handler DeliveryHandler
}

func NewLogEmitter(logger *logging.Logger, handler DeliveryHandler) *LogEmitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogEmitter{logger: logger, handler: handler}
}

func (e *LogEmitter) Emit(ctx context.Context, orgID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	env := Envelope{
		ID:        uuid.New(),
		OrgID:     orgID,
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	e.logger.Info("domain event", "event_id", env.ID, "org_id", orgID, "type", eventType)
	if e.handler == nil {
		return nil
	}
	if err := e.handler.Handle(ctx, env); err != nil {
		e.logger.Warn("event delivery failed", "error", err, "event_id", env.ID, "type", eventType)
	}
	return nil
}
