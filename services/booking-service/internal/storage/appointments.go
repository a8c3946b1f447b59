package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nutricare/nutribook/libs/db"
	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
	"github.com/nutricare/nutribook/services/booking-service/internal/model"
	"github.com/nutricare/nutribook/services/booking-service/internal/outbox"
	"github.com/nutricare/nutribook/services/booking-service/internal/slotstore"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventSessionStarted       = "booking.session.started.v1"
)

// AppointmentRepository owns appointment rows and every status transition.
// Each transition runs in one transaction under FOR UPDATE so concurrent
// mutations of the same appointment serialize; side effects on slots,
// payment intents and the outbox commit atomically with the status change.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id::text, patient_id::text, nutritionist_id::text, day, start_time, end_time,
	mode, notes, status, slot_id::text, COALESCE(meeting_url, ''),
	actual_start, actual_end, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var slotID *string
	err := row.Scan(
		&appt.ID, &appt.PatientID, &appt.NutritionistID, &appt.Day, &appt.StartTime, &appt.EndTime,
		&appt.Mode, &appt.Notes, &appt.Status, &slotID, &appt.MeetingURL,
		&appt.ActualStart, &appt.ActualEnd, &appt.CancelledAt, &appt.CancelReason, &appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.SlotID = slotID
	return appt, nil
}

// CreateInHouse reserves the slot and inserts the scheduled appointment in
// one transaction. The slot's interval becomes the appointment window.
func (r *AppointmentRepository) CreateInHouse(ctx context.Context, appt *model.Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slot, err := slotstore.Reserve(ctx, tx, *appt.SlotID)
	if err != nil {
		return err
	}
	appt.NutritionistID = slot.NutritionistID
	appt.Day = slot.Day
	appt.StartTime = slot.StartTime
	appt.EndTime = slot.EndTime
	appt.Status = model.StatusScheduled
	appt.Mode = model.ModeInPerson

	if err := r.insert(ctx, tx, appt); err != nil {
		return err
	}
	if err := r.emitBooked(ctx, tx, *appt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateVirtualPending inserts the pending_payment appointment together
// with its payment intent. The partial unique index on active windows
// rejects duplicate submissions for the same nutritionist/start.
func (r *AppointmentRepository) CreateVirtualPending(ctx context.Context, appt *model.Appointment, intent *model.PaymentIntent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt.Status = model.StatusPendingPayment
	if err := r.insert(ctx, tx, appt); err != nil {
		if db.IsUniqueViolation(err) {
			return booking.ErrSlotUnavailable
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_intents (id, appointment_id, amount_cents, currency, provider_session_token, provider_order_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'created')
	`, intent.ID, intent.AppointmentID, intent.AmountCents, intent.Currency, intent.SessionToken, intent.OrderID)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return tx.Commit(ctx)
}

// WindowTaken reports whether a live appointment already holds the
// nutritionist's start time. The partial unique index on active windows
// still backstops concurrent submissions that race past this check.
func (r *AppointmentRepository) WindowTaken(ctx context.Context, nutritionistID string, start time.Time) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE nutritionist_id = $1 AND start_time = $2
			  AND status IN ('pending_payment', 'scheduled', 'confirmed')
		)
	`, nutritionistID, start).Scan(&taken)
	return taken, err
}

func (r *AppointmentRepository) insert(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	var meetingURL *string
	if appt.MeetingURL != "" {
		meetingURL = &appt.MeetingURL
	}
	return tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, nutritionist_id, day, start_time, end_time, mode, notes, status, slot_id, meeting_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, appt.ID, appt.PatientID, appt.NutritionistID, appt.Day, appt.StartTime, appt.EndTime,
		appt.Mode, appt.Notes, appt.Status, appt.SlotID, meetingURL).Scan(&appt.CreatedAt)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, booking.ErrNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) getForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, booking.ErrNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) IntentByAppointment(ctx context.Context, appointmentID string) (model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, appointment_id::text, amount_cents, currency, provider_session_token, provider_order_id, status, created_at, updated_at
		FROM payment_intents
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&intent.ID, &intent.AppointmentID, &intent.AmountCents, &intent.Currency,
		&intent.SessionToken, &intent.OrderID, &intent.Status, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PaymentIntent{}, booking.ErrNotFound
		}
		return model.PaymentIntent{}, err
	}
	return intent, nil
}

// ApplyPaymentResult resolves a pending_payment appointment after the
// gateway verdict. Succeeded confirms; anything else cancels. Re-applying
// to an already confirmed appointment is a no-op (idempotent confirm).
func (r *AppointmentRepository) ApplyPaymentResult(ctx context.Context, appointmentID string, succeeded bool) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := r.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusConfirmed {
		return appt, nil
	}
	if appt.Status != model.StatusPendingPayment {
		return model.Appointment{}, fmt.Errorf("%w: appointment is %s", booking.ErrInvalidState, appt.Status)
	}

	if succeeded {
		if _, err := tx.Exec(ctx, `
			UPDATE payment_intents SET status = 'succeeded', updated_at = now()
			WHERE appointment_id = $1
		`, appointmentID); err != nil {
			return model.Appointment{}, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE appointments SET status = 'confirmed' WHERE id = $1
		`, appointmentID); err != nil {
			return model.Appointment{}, err
		}
		appt.Status = model.StatusConfirmed
		if err := r.emitBooked(ctx, tx, appt); err != nil {
			return model.Appointment{}, err
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE payment_intents SET status = 'failed', updated_at = now()
			WHERE appointment_id = $1 AND status = 'created'
		`, appointmentID); err != nil {
			return model.Appointment{}, err
		}
		var cancelledAt time.Time
		err := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'cancelled', cancelled_at = now(), cancellation_reason = 'payment failed'
			WHERE id = $1
			RETURNING cancelled_at
		`, appointmentID).Scan(&cancelledAt)
		if err != nil {
			return model.Appointment{}, err
		}
		appt.Status = model.StatusCancelled
		appt.CancelledAt = &cancelledAt
		appt.CancelReason = "payment failed"
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// StartSession moves a booked virtual appointment to in_progress and
// writes the session-started event in the same transaction. The event is
// emitted only on the booked -> in_progress edge, never on a retried start,
// so downstream delivery is exactly once per transition. The second return
// reports whether the event was emitted.
func (r *AppointmentRepository) StartSession(ctx context.Context, appointmentID string, now time.Time) (model.Appointment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := r.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, false, err
	}
	if appt.Status == model.StatusInProgress {
		return appt, false, nil
	}
	if _, err := booking.Next(appt.Status, booking.EventStartSession); err != nil {
		return model.Appointment{}, false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments SET status = 'in_progress', actual_start = $2
		WHERE id = $1
	`, appointmentID, now); err != nil {
		return model.Appointment{}, false, err
	}
	appt.Status = model.StatusInProgress
	appt.ActualStart = &now

	var nutritionistName string
	if err := tx.QueryRow(ctx, `
		SELECT full_name FROM nutritionists WHERE id = $1
	`, appt.NutritionistID).Scan(&nutritionistName); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, false, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id":    appt.ID,
		"patient_id":        appt.PatientID,
		"nutritionist_id":   appt.NutritionistID,
		"nutritionist_name": nutritionistName,
		"meeting_url":       appt.MeetingURL,
		"started_at":        now.Format(time.RFC3339),
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     EventSessionStarted,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

// EndSession completes an in_progress appointment. Repeating it on a
// completed appointment is a no-op.
func (r *AppointmentRepository) EndSession(ctx context.Context, appointmentID string, now time.Time) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := r.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCompleted {
		return appt, nil
	}
	if _, err := booking.Next(appt.Status, booking.EventEndSession); err != nil {
		return model.Appointment{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments SET status = 'completed', actual_end = $2
		WHERE id = $1
	`, appointmentID, now); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCompleted
	appt.ActualEnd = &now

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Cancel moves any non-terminal appointment to cancelled, releases a linked
// slot, and fails an unresolved payment intent, all in one transaction.
// Cancelling an already cancelled appointment is a no-op.
func (r *AppointmentRepository) Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := r.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}
	if _, err := booking.Next(appt.Status, booking.EventCancel); err != nil {
		return model.Appointment{}, err
	}

	var cancelledAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = now(), cancellation_reason = $2
		WHERE id = $1
		RETURNING cancelled_at
	`, appointmentID, reason).Scan(&cancelledAt)
	if err != nil {
		return model.Appointment{}, err
	}

	if appt.SlotID != nil {
		if err := slotstore.Release(ctx, tx, *appt.SlotID); err != nil {
			return model.Appointment{}, err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE payment_intents SET status = 'failed', updated_at = now()
		WHERE appointment_id = $1 AND status = 'created'
	`, appointmentID); err != nil {
		return model.Appointment{}, err
	}

	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	appt.CancelReason = reason

	payload, err := json.Marshal(map[string]any{
		"appointment_id":  appt.ID,
		"patient_id":      appt.PatientID,
		"nutritionist_id": appt.NutritionistID,
		"start_time":      appt.StartTime.UTC().Format(time.RFC3339),
		"cancelled_at":    cancelledAt.UTC().Format(time.RFC3339),
		"reason":          reason,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// UpdateSchedule rewrites the window/mode/notes of a booked virtual
// appointment. Status is unchanged by design: reschedule keeps the booking.
func (r *AppointmentRepository) UpdateSchedule(ctx context.Context, appointmentID string, day, start, end time.Time, mode, notes string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := r.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if _, err := booking.Next(appt.Status, booking.EventReschedule); err != nil {
		return model.Appointment{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET day = $2, start_time = $3, end_time = $4, mode = $5, notes = $6
		WHERE id = $1
	`, appointmentID, day, start, end, mode, notes); err != nil {
		// The active-window unique index rejects a move onto a window
		// another live appointment holds.
		if db.IsUniqueViolation(err) {
			return model.Appointment{}, booking.ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}
	appt.Day, appt.StartTime, appt.EndTime, appt.Mode, appt.Notes = day, start, end, mode, notes

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// UpdateNotes is the reschedule path for slot-linked bookings: the slot's
// window is frozen, only the notes change.
func (r *AppointmentRepository) UpdateNotes(ctx context.Context, appointmentID, notes string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := r.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if _, err := booking.Next(appt.Status, booking.EventReschedule); err != nil {
		return model.Appointment{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments SET notes = $2 WHERE id = $1
	`, appointmentID, notes); err != nil {
		return model.Appointment{}, err
	}
	appt.Notes = notes

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error) {
	return r.list(ctx, `patient_id`, patientID, limit)
}

func (r *AppointmentRepository) ListByNutritionist(ctx context.Context, nutritionistID string, limit int) ([]model.Appointment, error) {
	return r.list(ctx, `nutritionist_id`, nutritionistID, limit)
}

func (r *AppointmentRepository) list(ctx context.Context, column, id string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+column+` = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

// StalePendingPayment lists pending_payment appointments older than cutoff,
// with their gateway order ids, for the reconciler.
func (r *AppointmentRepository) StalePendingPayment(ctx context.Context, cutoff time.Time, limit int) ([]PendingPayment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, pi.provider_order_id, a.created_at
		FROM appointments a
		JOIN payment_intents pi ON pi.appointment_id = a.id
		WHERE a.status = 'pending_payment'
		  AND pi.status = 'created'
		  AND a.created_at < $1
		ORDER BY a.created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingPayment
	for rows.Next() {
		var p PendingPayment
		if err := rows.Scan(&p.AppointmentID, &p.OrderID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type PendingPayment struct {
	AppointmentID string
	OrderID       string
	CreatedAt     time.Time
}

func (r *AppointmentRepository) emitBooked(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":  appt.ID,
		"patient_id":      appt.PatientID,
		"nutritionist_id": appt.NutritionistID,
		"mode":            appt.Mode,
		"start_time":      appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":        appt.EndTime.UTC().Format(time.RFC3339),
		"status":          appt.Status,
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     EventAppointmentBooked,
		Payload:       payload,
	})
}
