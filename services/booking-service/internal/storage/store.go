package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/roombook/libs/db"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is the Postgres-backed interval store.
type Store struct {
	pool        *db.Pool
	outbox      *outbox.Repository
	lockTimeout time.Duration
}

var _ reservation.Store = (*Store)(nil)

type Options struct {
	// LockTimeout caps how long a transaction waits for a row lock. Zero leaves
	// the server default and relies on the context deadline.
	LockTimeout time.Duration
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository, opts Options) *Store {
	return &Store{pool: pool, outbox: outboxRepo, lockTimeout: opts.LockTimeout}
}

// Atomically serializes writers per room with SELECT ... FOR UPDATE on the
// room row. Writers on different rooms never wait on each other.
func (s *Store) Atomically(ctx context.Context, roomID int64, fn func(ctx context.Context, tx reservation.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return classify(err)
		}
	}

	var locked int64
	if err := tx.QueryRow(ctx, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&locked); err != nil {
		return notFound(err, "room", roomID)
	}

	if err := fn(ctx, &bookingTx{tx: tx, store: s, roomID: roomID}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

// bookingTx implements reservation.Tx on top of a pgx transaction holding the room lock.
type bookingTx struct {
	tx     pgx.Tx
	store  *Store
	roomID int64
}

func (t *bookingTx) EnqueueEvent(ctx context.Context, evt outbox.Event) error {
	return t.store.outbox.Insert(ctx, t.tx, evt)
}
