package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nutricare/nutribook/libs/db"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID            string
	UserID        string
	AppointmentID string
	Title         string
	Message       string
	MeetingURL    string
	ReadAt        *time.Time
	CreatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes a notification inside the caller's transaction. Consumers
// pair it with the inbox record so both land atomically.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n *Notification) error {
	return tx.QueryRow(ctx, `
		INSERT INTO notifications (user_id, appointment_id, title, message, meeting_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at
	`, n.UserID, n.AppointmentID, n.Title, n.Message, n.MeetingURL).Scan(&n.ID, &n.CreatedAt)
}

// MarkRead stamps read_at once. Re-marking a read notification is a no-op,
// so clients can retry freely.
func (r *Repository) MarkRead(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = now()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "already read" from "not yours / not there".
		var exists bool
		if err := r.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)
		`, id, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = now()
		WHERE user_id = $1 AND read_at IS NULL
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListUnread returns unread notifications newest first.
func (r *Repository) ListUnread(ctx context.Context, userID string) ([]Notification, error) {
	return r.list(ctx, `
		SELECT id::text, user_id::text, appointment_id::text, title, message, meeting_url, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND read_at IS NULL
		ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT id::text, user_id::text, appointment_id::text, title, message, meeting_url, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.AppointmentID, &n.Title, &n.Message, &n.MeetingURL, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
