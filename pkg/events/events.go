package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Kind enumerates row mutations.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// Change is a table-scoped notification. It carries no row payload; listeners re-fetch.
type Change struct {
	Table      string    `json:"table"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Handler reacts to a change notification.
type Handler func(ctx context.Context, change Change)

// Bus publishes and receives change notifications over a Redis channel.
// A Bus without a client accepts publishes and never delivers anything.
type Bus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewBus constructs a bus on channel.
func NewBus(client *redis.Client, channel string, logger *zap.Logger) *Bus {
	if channel == "" {
		channel = "classroom:changes"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{client: client, channel: channel, logger: logger}
}

// Publish broadcasts a change.
func (b *Bus) Publish(ctx context.Context, change Change) error {
	if b == nil || b.client == nil {
		return nil
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change on %s: %w", b.channel, err)
	}
	return nil
}

// Listen delivers changes to handler until ctx is cancelled. It blocks.
func (b *Bus) Listen(ctx context.Context, handler Handler) error {
	if b == nil || b.client == nil {
		<-ctx.Done()
		return nil
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close() //nolint:errcheck

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Sugar().Infow("change listener subscribed", "channel", b.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.dispatch(ctx, []byte(msg.Payload), handler)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, payload []byte, handler Handler) {
	var change Change
	if err := json.Unmarshal(payload, &change); err != nil {
		b.logger.Warn("discarding malformed change notification", zap.Error(err))
		return
	}
	if change.Table == "" {
		b.logger.Warn("discarding change notification without table")
		return
	}
	handler(ctx, change)
}
