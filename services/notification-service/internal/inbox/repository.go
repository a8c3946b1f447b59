package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository records consumed event ids inside the caller's transaction,
// so the dedupe mark and the work it guards commit or roll back together.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record registers a consumed event id. It returns false when the event was
// seen before, which is how at-least-once delivery collapses to
// exactly-once processing.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
