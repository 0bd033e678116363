package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/roombook/libs/db"
	otelx "github.com/md-rashed-zaman/roombook/libs/otel"
)

const maxErrorLength = 1000

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes evt inside the caller's transaction together with the
// current trace context.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Parent, tc.State)
	return err
}

// ProcessBatch locks up to limit pending rows, hands each to publish and
// records the result before committing. Rows reaching maxAttempts failures
// are marked failed and no longer fetched. A publish refused by an open
// breaker ends the batch without counting an attempt.
func (r *Repository) ProcessBatch(ctx context.Context, limit, maxAttempts int, publish func(context.Context, Record) error) (BatchResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := r.fetchPending(ctx, tx, limit)
	if err != nil {
		return BatchResult{}, err
	}
	if len(records) == 0 {
		return BatchResult{}, tx.Commit(ctx)
	}

	var (
		result    BatchResult
		published []int64
	)
	for _, rec := range records {
		o := settle(rec, publish(ctx, rec), maxAttempts)
		result.Outcomes = append(result.Outcomes, o)
		if o.Deferred {
			// The channel is refusing work; the rest of the batch stays pending untouched.
			break
		}
		if o.Err == nil {
			published = append(published, rec.ID)
			continue
		}
		if err := r.markFailed(ctx, tx, rec.ID, o.Err, o.DeadLettered); err != nil {
			return BatchResult{}, err
		}
	}

	if err := r.markPublished(ctx, tx, published); err != nil {
		return BatchResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

func (r *Repository) fetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), attempts, created_at
		FROM outbox_events
		WHERE published_at IS NULL AND failed_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType,
			&rcd.Payload, &rcd.Trace.Parent, &rcd.Trace.State, &rcd.Attempts, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) markPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) markFailed(ctx context.Context, tx pgx.Tx, id int64, cause error, dead bool) error {
	msg := cause.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
			last_error = $2,
			failed_at = CASE WHEN $3::boolean THEN now() ELSE NULL END
		WHERE id = $1
	`, id, msg, dead)
	if err != nil {
		return fmt.Errorf("mark outbox event %d failed: %w", id, err)
	}
	return nil
}
