package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends every message to a single stream. Durability follows
// the server's AOF settings.
type RedisStream struct {
	rdb    streamAdder
	stream string
	maxLen int64
}

func NewRedisStream(rdb redis.Cmdable, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = "roombook:events"
	}
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Publish(ctx context.Context, msg Message) error {
	carrier := propagation.MapCarrier{}
	for k, v := range msg.Headers {
		carrier[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	values := map[string]any{
		"topic":   msg.Topic,
		"key":     msg.Key,
		"payload": string(msg.Payload),
	}
	for k, v := range carrier {
		values["h:"+k] = v
	}

	args := &redis.XAddArgs{Stream: r.stream, Values: values}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return r.rdb.XAdd(ctx, args).Err()
}
