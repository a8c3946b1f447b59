package slotstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nutricare/nutribook/libs/db"
	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
	"github.com/nutricare/nutribook/services/booking-service/internal/model"
)

// Store owns all Slot mutation. Appointment code flips availability only
// through Reserve/Release so the open->booked edge stays a single choke
// point.
type Store struct {
	pool *db.Pool
	now  func() time.Time
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Add inserts a new open slot after checking the interval is well formed
// and does not intersect any existing slot for the nutritionist. The
// overlap check runs inside the insert transaction; the DB exclusion
// constraint backstops it against concurrent adds.
func (s *Store) Add(ctx context.Context, nutritionistID string, day, start, end time.Time) (model.Slot, error) {
	if !ValidRange(day, start, end, s.now()) {
		return model.Slot{}, booking.ErrInvalidRange
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Slot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var overlapping bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM slots
			WHERE nutritionist_id = $1
			  AND start_time < $3
			  AND end_time > $2
		)
	`, nutritionistID, start, end).Scan(&overlapping)
	if err != nil {
		return model.Slot{}, err
	}
	if overlapping {
		return model.Slot{}, booking.ErrOverlap
	}

	var slot model.Slot
	err = tx.QueryRow(ctx, `
		INSERT INTO slots (nutritionist_id, day, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, 'open')
		RETURNING id, nutritionist_id, day, start_time, end_time, status, created_at
	`, nutritionistID, day, start, end).Scan(
		&slot.ID, &slot.NutritionistID, &slot.Day, &slot.StartTime, &slot.EndTime, &slot.Status, &slot.CreatedAt,
	)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return model.Slot{}, booking.ErrOverlap
		}
		return model.Slot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Slot{}, err
	}
	return slot, nil
}

// Remove deletes an open slot. Booked slots cannot be deleted.
func (s *Store) Remove(ctx context.Context, nutritionistID, slotID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `
		SELECT status FROM slots
		WHERE id = $1 AND nutritionist_id = $2
		FOR UPDATE
	`, slotID, nutritionistID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ErrNotFound
		}
		return err
	}
	if status == model.SlotBooked {
		return booking.ErrSlotBooked
	}

	if _, err := tx.Exec(ctx, `DELETE FROM slots WHERE id = $1`, slotID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// List returns the nutritionist's slots for a day ordered by start time.
// Callers partition by status (open vs booked).
func (s *Store) List(ctx context.Context, nutritionistID string, day time.Time) ([]model.Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, nutritionist_id, day, start_time, end_time, status, created_at
		FROM slots
		WHERE nutritionist_id = $1 AND day = $2
		ORDER BY start_time ASC
	`, nutritionistID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		var slot model.Slot
		if err := rows.Scan(&slot.ID, &slot.NutritionistID, &slot.Day, &slot.StartTime, &slot.EndTime, &slot.Status, &slot.CreatedAt); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ListUpcoming returns every slot for the nutritionist from a given day
// forward, ordered by day then start time.
func (s *Store) ListUpcoming(ctx context.Context, nutritionistID string, from time.Time) ([]model.Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, nutritionist_id, day, start_time, end_time, status, created_at
		FROM slots
		WHERE nutritionist_id = $1 AND day >= $2
		ORDER BY day ASC, start_time ASC
	`, nutritionistID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		var slot model.Slot
		if err := rows.Scan(&slot.ID, &slot.NutritionistID, &slot.Day, &slot.StartTime, &slot.EndTime, &slot.Status, &slot.CreatedAt); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// Reserve atomically flips one open slot to booked within the caller's
// transaction. Exactly one of any number of concurrent callers wins; the
// rest observe ErrSlotUnavailable.
func Reserve(ctx context.Context, tx pgx.Tx, slotID string) (model.Slot, error) {
	var slot model.Slot
	err := tx.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked'
		WHERE id = $1 AND status = 'open'
		RETURNING id, nutritionist_id, day, start_time, end_time, status, created_at
	`, slotID).Scan(
		&slot.ID, &slot.NutritionistID, &slot.Day, &slot.StartTime, &slot.EndTime, &slot.Status, &slot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Slot{}, booking.ErrSlotUnavailable
		}
		return model.Slot{}, fmt.Errorf("reserve slot: %w", err)
	}
	return slot, nil
}

// Release returns a booked slot to open. It is an idempotent no-op when the
// slot is already open or gone.
func Release(ctx context.Context, tx pgx.Tx, slotID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'open'
		WHERE id = $1 AND status = 'booked'
	`, slotID)
	return err
}
