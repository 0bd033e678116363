package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/roombook/libs/config"
	"github.com/md-rashed-zaman/roombook/libs/kafkax"
	"github.com/md-rashed-zaman/roombook/libs/notify"
	"github.com/md-rashed-zaman/roombook/libs/runtime"
	"github.com/redis/go-redis/v9"
)

// notifierConfig is read once at startup and handed to the publisher constructors.
type notifierConfig struct {
	Channel     string
	Brokers     string
	RedisStream string
	StreamLen   int
}

func loadNotifierConfig() (notifierConfig, error) {
	brokers := config.String("KAFKA_BROKERS", "")
	channel := strings.ToLower(config.String("NOTIFY_CHANNEL", ""))
	if channel == "" {
		channel = "none"
		if brokers != "" {
			channel = "kafka"
		}
	}
	streamLen, err := config.Int("REDIS_STREAM_MAXLEN", 100000)
	if err != nil {
		return notifierConfig{}, err
	}
	return notifierConfig{
		Channel:     channel,
		Brokers:     brokers,
		RedisStream: config.String("REDIS_STREAM", "roombook:events"),
		StreamLen:   streamLen,
	}, nil
}

// newPublisher builds the channel publisher and its readiness check. The
// returned closer releases the channel client, if any.
func newPublisher(cfg notifierConfig, rdb *redis.Client, logger *slog.Logger) (notify.Publisher, io.Closer, *runtime.ReadyCheck, error) {
	switch cfg.Channel {
	case "kafka":
		brokers := kafkax.SplitBrokers(cfg.Brokers)
		if len(brokers) == 0 {
			return nil, nil, nil, fmt.Errorf("NOTIFY_CHANNEL=kafka requires KAFKA_BROKERS")
		}
		k := notify.NewKafka(brokers)
		pub := notify.NewBreaker(k, logger, notify.BreakerConfig{Name: "kafka"})
		return pub, k, &runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Brokers)}, nil
	case "redis":
		if rdb == nil {
			return nil, nil, nil, fmt.Errorf("NOTIFY_CHANNEL=redis requires REDIS_URL")
		}
		pub := notify.NewBreaker(notify.NewRedisStream(rdb, cfg.RedisStream, int64(cfg.StreamLen)), logger, notify.BreakerConfig{Name: "redis"})
		return pub, nil, nil, nil
	case "none":
		return notify.NewNop(logger), nil, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown NOTIFY_CHANNEL %q (want kafka, redis or none)", cfg.Channel)
	}
}

func newRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func redisReadyCheck(rdb *redis.Client) runtime.ReadyCheck {
	return runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}
