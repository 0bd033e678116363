package notify

import (
	"context"
	"log/slog"
)

// Message is one event handed to a notification channel. Topic doubles as the
// event type.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
	Headers map[string]string
}

// Publisher delivers a message durably to an external channel.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Nop is used when no channel endpoint is configured. Every publish is logged
// and reported as delivered so callers are never blocked.
type Nop struct {
	logger *slog.Logger
}

func NewNop(logger *slog.Logger) *Nop {
	return &Nop{logger: logger}
}

func (n *Nop) Publish(ctx context.Context, msg Message) error {
	n.logger.WarnContext(ctx, "notification channel not configured", "topic", msg.Topic, "key", msg.Key)
	return nil
}
