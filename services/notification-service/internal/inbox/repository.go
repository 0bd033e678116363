package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository dedupes consumed events by event_id.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record claims eventID inside tx. It returns false when the event was
// already processed.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
