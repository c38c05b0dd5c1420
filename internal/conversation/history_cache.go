package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/agentdesk/internal/llm"
)

const (
	historyTTL      = 24 * time.Hour
	defaultMaxTurns = 40
)

// HistoryCache holds the recent prompt turns of a conversation.
type HistoryCache interface {
	Append(ctx context.Context, conversationID string, turns ...llm.Message) error
	// Load reports false when nothing is cached for the conversation.
	Load(ctx context.Context, conversationID string) ([]llm.Message, bool, error)
}

// RedisHistoryCache stores turns in a capped Redis list that expires a day
// after the last write.
type RedisHistoryCache struct {
	redis    *redis.Client
	tracer   trace.Tracer
	maxTurns int64
}

func NewRedisHistoryCache(client *redis.Client, tracer trace.Tracer) *RedisHistoryCache {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("agentdesk.internal.conversation.history")
	}
	return &RedisHistoryCache{redis: client, tracer: tracer, maxTurns: defaultMaxTurns}
}

func (c *RedisHistoryCache) Append(ctx context.Context, conversationID string, turns ...llm.Message) error {
	if len(turns) == 0 {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "conversation.append_history",
		trace.WithAttributes(attribute.String("conversation.id", conversationID), attribute.Int("turns", len(turns))))
	defer span.End()

	values := make([]any, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: failed to marshal turn: %w", err)
		}
		values = append(values, data)
	}

	key := historyKey(conversationID)
	pipe := c.redis.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -c.maxTurns, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Load(ctx context.Context, conversationID string) ([]llm.Message, bool, error) {
	ctx, span := c.tracer.Start(ctx, "conversation.load_history",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	raw, err := c.redis.LRange(ctx, historyKey(conversationID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	turns := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		var t llm.Message
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			span.RecordError(err)
			return nil, false, fmt.Errorf("conversation: failed to decode history: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, true, nil
}

func historyKey(id string) string {
	return fmt.Sprintf("conversation:%s:history", id)
}

var _ HistoryCache = (*RedisHistoryCache)(nil)
