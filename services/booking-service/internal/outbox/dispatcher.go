package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/roombook/libs/kafkax"
	"github.com/md-rashed-zaman/roombook/libs/metrics"
	"github.com/md-rashed-zaman/roombook/libs/notify"
)

// Batcher claims pending records and persists each publish result.
type Batcher interface {
	ProcessBatch(ctx context.Context, limit, maxAttempts int, publish func(context.Context, Record) error) (BatchResult, error)
}

type DispatcherConfig struct {
	PollEvery      time.Duration
	BatchSize      int
	MaxAttempts    int
	PublishTimeout time.Duration
}

// Dispatcher drains the outbox to a notify.Publisher. It polls on a ticker and
// also wakes on Kick so fresh bookings go out without waiting a full interval.
// Delivery failures are logged and counted; the row stays pending for the
// next round until MaxAttempts is reached.
type Dispatcher struct {
	batcher   Batcher
	publisher notify.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       DispatcherConfig
	kick      chan struct{}
}

func NewDispatcher(batcher Batcher, publisher notify.Publisher, logger *slog.Logger, m *metrics.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return &Dispatcher{
		batcher:   batcher,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		cfg:       cfg,
		kick:      make(chan struct{}, 1),
	}
}

// Kick requests an immediate drain. It never blocks.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollEvery)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started", "poll_every", d.cfg.PollEvery.String(), "batch_size", d.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.kick:
		}
		d.drain(ctx)
	}
}

// drain keeps claiming batches while they come back full and fully delivered.
func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := d.DispatchOnce(ctx)
		if err != nil {
			d.logger.Error("outbox dispatch failed", "err", err)
			return
		}
		if len(res.Outcomes) < d.cfg.BatchSize || res.Published() < len(res.Outcomes) {
			return
		}
	}
}

// DispatchOnce processes a single batch.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	res, err := d.batcher.ProcessBatch(ctx, d.cfg.BatchSize, d.cfg.MaxAttempts, d.publish)
	if err != nil {
		return res, err
	}
	if len(res.Outcomes) > 0 {
		d.metrics.ObserveBatch(time.Since(start))
	}

	for _, o := range res.Outcomes {
		if o.Err == nil {
			d.metrics.Published(o.Record.EventType)
			continue
		}
		if o.Deferred {
			d.logger.Warn("notification channel unavailable; batch deferred", "err", o.Err, "event_id", o.Record.EventID)
			continue
		}
		d.metrics.PublishFailed(o.Record.EventType, o.DeadLettered)
		attrs := []any{
			"err", o.Err,
			"event_id", o.Record.EventID,
			"event_type", o.Record.EventType,
			"aggregate_id", o.Record.AggregateID,
			"attempt", o.Record.Attempts + 1,
		}
		if o.DeadLettered {
			d.logger.Error("notification dropped after max attempts", attrs...)
		} else {
			d.logger.Warn("notification delivery failed; will retry", attrs...)
		}
	}
	return res, nil
}

func (d *Dispatcher) publish(ctx context.Context, r Record) error {
	msgCtx := r.Trace.Restore(ctx)
	msgCtx, cancel := context.WithTimeout(msgCtx, d.cfg.PublishTimeout)
	defer cancel()

	return d.publisher.Publish(msgCtx, notify.Message{
		Topic:   r.EventType,
		Key:     r.AggregateID,
		Payload: r.Payload,
		Headers: map[string]string{
			kafkax.HeaderEventID: r.EventID,
			"aggregate_type":     r.AggregateType,
		},
	})
}
