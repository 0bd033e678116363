package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/roombook/libs/db"
)

// Notification is one delivered booking event.
type Notification struct {
	EventID       string
	EventType     string
	AppointmentID int64
	Payload       []byte
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (event_id, appointment_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, n.EventID, n.AppointmentID, n.EventType, n.Payload)
	return err
}
