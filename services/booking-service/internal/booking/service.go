package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nutricare/nutribook/services/booking-service/internal/model"
	"github.com/nutricare/nutribook/services/booking-service/internal/payments"
)

// Store is the persistence boundary for appointments. Every transition
// method is transactional and re-checks state under lock, so the service
// checks are advisory fast paths, not the source of truth.
type Store interface {
	CreateInHouse(ctx context.Context, appt *model.Appointment) error
	CreateVirtualPending(ctx context.Context, appt *model.Appointment, intent *model.PaymentIntent) error
	WindowTaken(ctx context.Context, nutritionistID string, start time.Time) (bool, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	IntentByAppointment(ctx context.Context, appointmentID string) (model.PaymentIntent, error)
	ApplyPaymentResult(ctx context.Context, appointmentID string, succeeded bool) (model.Appointment, error)
	StartSession(ctx context.Context, appointmentID string, now time.Time) (model.Appointment, bool, error)
	EndSession(ctx context.Context, appointmentID string, now time.Time) (model.Appointment, error)
	Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
	UpdateSchedule(ctx context.Context, appointmentID string, day, start, end time.Time, mode, notes string) (model.Appointment, error)
	UpdateNotes(ctx context.Context, appointmentID, notes string) (model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error)
	ListByNutritionist(ctx context.Context, nutritionistID string, limit int) ([]model.Appointment, error)
}

// Directory resolves nutritionist profiles for booking validation.
type Directory interface {
	Get(ctx context.Context, id string) (model.Nutritionist, error)
}

type Config struct {
	// Currency for expert session checkouts, e.g. "usd".
	Currency string
	// SettleDelay is how long to wait before (re)verifying a fresh checkout
	// with the gateway. Providers settle asynchronously.
	SettleDelay time.Duration
	// VerifyAttempts is how many gateway polls a confirm call makes before
	// treating a still-pending order as failed.
	VerifyAttempts int
	// MeetingBaseURL is the video room prefix for virtual sessions.
	MeetingBaseURL string
	// DefaultDuration fills in the end time when a booking request only
	// names a start.
	DefaultDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 1500 * time.Millisecond
	}
	if c.VerifyAttempts <= 0 {
		c.VerifyAttempts = 2
	}
	if c.MeetingBaseURL == "" {
		c.MeetingBaseURL = "https://meet.jit.si"
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 30 * time.Minute
	}
	return c
}

// Service coordinates the appointment lifecycle: slot bookings, payment
// gated expert bookings, and session start/end.
type Service struct {
	store     Store
	directory Directory
	gateway   payments.Gateway
	cfg       Config
	log       *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

func NewService(store Store, directory Directory, gateway payments.Gateway, cfg Config, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		gateway:   gateway,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   string
}

const (
	RolePatient      = "patient"
	RoleNutritionist = "nutritionist"
)

// CreateRequest describes a new booking. SlotID selects the in-house slot
// path; otherwise Day/StartTime/EndTime describe a payment-gated expert
// session.
type CreateRequest struct {
	NutritionistID string
	SlotID         string
	Day            time.Time
	StartTime      time.Time
	EndTime        time.Time
	Mode           string
	Notes          string
}

// CreateResult carries the new appointment plus, for payment-gated
// bookings, the checkout handle the client needs to complete payment.
type CreateResult struct {
	Appointment  model.Appointment
	SessionToken string
	OrderID      string
}

// CreateBooking books an appointment for the patient. Slot bookings are
// free and come out scheduled; expert bookings come out pending_payment
// with a checkout session attached.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, req CreateRequest) (CreateResult, error) {
	if actor.Role != RolePatient {
		return CreateResult{}, fmt.Errorf("%w: only patients book appointments", ErrUnauthorized)
	}
	if req.SlotID != "" {
		return s.createFromSlot(ctx, actor, req)
	}
	return s.createExpert(ctx, actor, req)
}

func (s *Service) createFromSlot(ctx context.Context, actor Actor, req CreateRequest) (CreateResult, error) {
	slotID := req.SlotID
	appt := model.Appointment{
		ID:        uuid.NewString(),
		PatientID: actor.UserID,
		Notes:     req.Notes,
		SlotID:    &slotID,
	}
	if err := s.store.CreateInHouse(ctx, &appt); err != nil {
		return CreateResult{}, err
	}
	s.log.InfoContext(ctx, "appointment booked",
		slog.String("appointment_id", appt.ID),
		slog.String("slot_id", slotID),
		slog.String("status", appt.Status))
	return CreateResult{Appointment: appt}, nil
}

func (s *Service) createExpert(ctx context.Context, actor Actor, req CreateRequest) (CreateResult, error) {
	if req.Mode != model.ModeVirtual && req.Mode != model.ModeInPerson {
		return CreateResult{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidOperation, req.Mode)
	}
	if req.EndTime.IsZero() && !req.StartTime.IsZero() {
		req.EndTime = req.StartTime.Add(s.cfg.DefaultDuration)
	}
	if err := s.validateWindow(req.Day, req.StartTime, req.EndTime); err != nil {
		return CreateResult{}, err
	}

	nutr, err := s.directory.Get(ctx, req.NutritionistID)
	if err != nil {
		return CreateResult{}, err
	}
	if !nutr.AcceptingPatients {
		return CreateResult{}, ErrNotAccepting
	}
	if nutr.HourlyRateCents == nil || *nutr.HourlyRateCents <= 0 {
		return CreateResult{}, fmt.Errorf("%w: nutritionist has no session rate", ErrInvalidOperation)
	}

	// Checked before the gateway call so a duplicate submission never
	// opens a checkout session it can only abandon. The unique index on
	// active windows still catches submissions that race past this.
	taken, err := s.store.WindowTaken(ctx, nutr.ID, req.StartTime)
	if err != nil {
		return CreateResult{}, err
	}
	if taken {
		return CreateResult{}, ErrSlotUnavailable
	}

	minutes := int64(req.EndTime.Sub(req.StartTime) / time.Minute)
	amount := *nutr.HourlyRateCents * minutes / 60

	apptID := uuid.NewString()
	intent, err := s.gateway.CreateIntent(ctx, apptID, amount, s.cfg.Currency)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	appt := model.Appointment{
		ID:             apptID,
		PatientID:      actor.UserID,
		NutritionistID: nutr.ID,
		Day:            req.Day,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Mode:           req.Mode,
		Notes:          req.Notes,
	}
	if req.Mode == model.ModeVirtual {
		appt.MeetingURL = s.meetingURL(apptID)
	}
	pi := model.PaymentIntent{
		ID:            uuid.NewString(),
		AppointmentID: apptID,
		AmountCents:   amount,
		Currency:      s.cfg.Currency,
		SessionToken:  intent.SessionToken,
		OrderID:       intent.OrderID,
		Status:        model.IntentCreated,
	}
	if err := s.store.CreateVirtualPending(ctx, &appt, &pi); err != nil {
		return CreateResult{}, err
	}
	s.log.InfoContext(ctx, "appointment pending payment",
		slog.String("appointment_id", appt.ID),
		slog.String("nutritionist_id", nutr.ID),
		slog.Int64("amount_cents", amount))
	return CreateResult{Appointment: appt, SessionToken: intent.SessionToken, OrderID: intent.OrderID}, nil
}

func (s *Service) meetingURL(appointmentID string) string {
	token := appointmentID
	if len(token) > 8 {
		token = token[:8]
	}
	return s.cfg.MeetingBaseURL + "/nutricare-" + token
}

func (s *Service) validateWindow(day, start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidRange)
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if day.Before(today) {
		return fmt.Errorf("%w: day is in the past", ErrInvalidRange)
	}
	return nil
}

// ConfirmPayment polls the gateway for the appointment's order and applies
// the verdict. A still-pending order after the configured attempts, or any
// gateway error, counts as a failed payment and cancels the appointment.
// Confirming an already confirmed appointment returns it unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, actor Actor, appointmentID string) (model.Appointment, error) {
	appt, err := s.authorize(ctx, actor, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusConfirmed {
		return appt, nil
	}
	if appt.Status != model.StatusPendingPayment {
		return model.Appointment{}, fmt.Errorf("%w: appointment is %s", ErrInvalidState, appt.Status)
	}

	intent, err := s.store.IntentByAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}

	status := payments.StatusPending
	for attempt := 0; attempt < s.cfg.VerifyAttempts && status == payments.StatusPending; attempt++ {
		s.sleep(ctx, s.cfg.SettleDelay)
		status, err = s.gateway.VerifyIntent(ctx, intent.OrderID)
		if err != nil {
			s.log.WarnContext(ctx, "payment verification failed",
				slog.String("appointment_id", appointmentID),
				slog.String("order_id", intent.OrderID),
				slog.String("error", err.Error()))
			status = payments.StatusFailed
		}
	}

	appt, err = s.store.ApplyPaymentResult(ctx, appointmentID, status == payments.StatusSucceeded)
	if err != nil {
		return model.Appointment{}, err
	}
	if status != payments.StatusSucceeded {
		return appt, fmt.Errorf("%w: order %s did not settle", ErrPaymentFailed, intent.OrderID)
	}
	s.log.InfoContext(ctx, "payment confirmed",
		slog.String("appointment_id", appointmentID),
		slog.String("order_id", intent.OrderID))
	return appt, nil
}

// StartSession begins a virtual session. Only the appointment's
// nutritionist may start it, and only virtual appointments have sessions.
// Restarting an in-progress session is a no-op and emits nothing.
func (s *Service) StartSession(ctx context.Context, actor Actor, appointmentID string) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if actor.Role != RoleNutritionist || actor.UserID != appt.NutritionistID {
		return model.Appointment{}, fmt.Errorf("%w: only the assigned nutritionist starts sessions", ErrUnauthorized)
	}
	if appt.Mode != model.ModeVirtual {
		return model.Appointment{}, fmt.Errorf("%w: %s appointments have no remote session", ErrInvalidOperation, appt.Mode)
	}

	appt, emitted, err := s.store.StartSession(ctx, appointmentID, s.now().UTC())
	if err != nil {
		return model.Appointment{}, err
	}
	if emitted {
		s.log.InfoContext(ctx, "session started",
			slog.String("appointment_id", appt.ID),
			slog.String("meeting_url", appt.MeetingURL))
	}
	return appt, nil
}

// EndSession completes an in-progress session.
func (s *Service) EndSession(ctx context.Context, actor Actor, appointmentID string) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if actor.Role != RoleNutritionist || actor.UserID != appt.NutritionistID {
		return model.Appointment{}, fmt.Errorf("%w: only the assigned nutritionist ends sessions", ErrUnauthorized)
	}
	return s.store.EndSession(ctx, appointmentID, s.now().UTC())
}

// Cancel cancels an appointment. Either party on the appointment may
// cancel; cancelling frees a linked slot for rebooking.
func (s *Service) Cancel(ctx context.Context, actor Actor, appointmentID, reason string) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if actor.UserID != appt.PatientID && actor.UserID != appt.NutritionistID {
		return model.Appointment{}, fmt.Errorf("%w: not a party to this appointment", ErrUnauthorized)
	}
	if reason == "" {
		reason = "cancelled by " + actor.Role
	}
	return s.store.Cancel(ctx, appointmentID, reason)
}

// RescheduleRequest carries the fields a patient may change. For
// slot-linked appointments the slot's window is frozen and only notes
// apply; expert appointments may move their window.
type RescheduleRequest struct {
	Day       time.Time
	StartTime time.Time
	EndTime   time.Time
	Mode      string
	Notes     string
}

func (s *Service) Reschedule(ctx context.Context, actor Actor, appointmentID string, req RescheduleRequest) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if actor.Role != RolePatient || actor.UserID != appt.PatientID {
		return model.Appointment{}, fmt.Errorf("%w: only the booking patient reschedules", ErrUnauthorized)
	}
	if !IsBooked(appt.Status) {
		return model.Appointment{}, fmt.Errorf("%w: %s does not accept %s", ErrInvalidState, appt.Status, EventReschedule)
	}

	if appt.SlotID != nil {
		return s.store.UpdateNotes(ctx, appointmentID, req.Notes)
	}

	mode := req.Mode
	if mode == "" {
		mode = appt.Mode
	}
	if mode == model.ModeVirtual && appt.MeetingURL == "" {
		return model.Appointment{}, fmt.Errorf("%w: cannot switch an in-person booking to virtual", ErrInvalidOperation)
	}
	if err := s.validateWindow(req.Day, req.StartTime, req.EndTime); err != nil {
		return model.Appointment{}, err
	}
	return s.store.UpdateSchedule(ctx, appointmentID, req.Day, req.StartTime, req.EndTime, mode, req.Notes)
}

// GetAppointment returns the appointment if the actor is a party to it.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, appointmentID string) (model.Appointment, error) {
	return s.authorize(ctx, actor, appointmentID)
}

// ListMine lists the actor's appointments, newest first.
func (s *Service) ListMine(ctx context.Context, actor Actor, limit int) ([]model.Appointment, error) {
	if actor.Role == RoleNutritionist {
		return s.store.ListByNutritionist(ctx, actor.UserID, limit)
	}
	return s.store.ListByPatient(ctx, actor.UserID, limit)
}

func (s *Service) authorize(ctx context.Context, actor Actor, appointmentID string) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if actor.UserID != appt.PatientID && actor.UserID != appt.NutritionistID {
		return model.Appointment{}, fmt.Errorf("%w: not a party to this appointment", ErrUnauthorized)
	}
	return appt, nil
}
