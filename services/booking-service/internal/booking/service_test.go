package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nutricare/nutribook/services/booking-service/internal/model"
	"github.com/nutricare/nutribook/services/booking-service/internal/payments"
)

type fakeStore struct {
	appts   map[string]*model.Appointment
	intents map[string]*model.PaymentIntent
	slots   map[string]string // slot id -> status

	emitted  int
	applyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appts:   map[string]*model.Appointment{},
		intents: map[string]*model.PaymentIntent{},
		slots:   map[string]string{},
	}
}

func (f *fakeStore) CreateInHouse(_ context.Context, appt *model.Appointment) error {
	if f.slots[*appt.SlotID] != model.SlotOpen {
		return ErrSlotUnavailable
	}
	f.slots[*appt.SlotID] = model.SlotBooked
	appt.Status = model.StatusScheduled
	appt.Mode = model.ModeInPerson
	cp := *appt
	f.appts[appt.ID] = &cp
	return nil
}

func (f *fakeStore) CreateVirtualPending(_ context.Context, appt *model.Appointment, intent *model.PaymentIntent) error {
	if f.windowTaken(appt.ID, appt.NutritionistID, appt.StartTime) {
		return ErrSlotUnavailable
	}
	appt.Status = model.StatusPendingPayment
	cp := *appt
	f.appts[appt.ID] = &cp
	ci := *intent
	f.intents[appt.ID] = &ci
	return nil
}

// windowTaken mirrors the partial unique index on (nutritionist_id,
// start_time) over live appointments.
func (f *fakeStore) windowTaken(exceptID, nutritionistID string, start time.Time) bool {
	for _, a := range f.appts {
		if a.ID == exceptID || a.NutritionistID != nutritionistID || !a.StartTime.Equal(start) {
			continue
		}
		switch a.Status {
		case model.StatusPendingPayment, model.StatusScheduled, model.StatusConfirmed:
			return true
		}
	}
	return false
}

func (f *fakeStore) WindowTaken(_ context.Context, nutritionistID string, start time.Time) (bool, error) {
	return f.windowTaken("", nutritionistID, start), nil
}

func (f *fakeStore) Get(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return *appt, nil
}

func (f *fakeStore) IntentByAppointment(_ context.Context, id string) (model.PaymentIntent, error) {
	intent, ok := f.intents[id]
	if !ok {
		return model.PaymentIntent{}, ErrNotFound
	}
	return *intent, nil
}

func (f *fakeStore) ApplyPaymentResult(_ context.Context, id string, succeeded bool) (model.Appointment, error) {
	if f.applyErr != nil {
		return model.Appointment{}, f.applyErr
	}
	appt := f.appts[id]
	if appt.Status == model.StatusConfirmed {
		return *appt, nil
	}
	if appt.Status != model.StatusPendingPayment {
		return model.Appointment{}, fmt.Errorf("%w: appointment is %s", ErrInvalidState, appt.Status)
	}
	if succeeded {
		appt.Status = model.StatusConfirmed
		f.intents[id].Status = model.IntentSucceeded
	} else {
		appt.Status = model.StatusCancelled
		appt.CancelReason = "payment failed"
		f.intents[id].Status = model.IntentFailed
	}
	return *appt, nil
}

func (f *fakeStore) StartSession(_ context.Context, id string, now time.Time) (model.Appointment, bool, error) {
	appt := f.appts[id]
	if appt.Status == model.StatusInProgress {
		return *appt, false, nil
	}
	if _, err := Next(appt.Status, EventStartSession); err != nil {
		return model.Appointment{}, false, err
	}
	appt.Status = model.StatusInProgress
	appt.ActualStart = &now
	f.emitted++
	return *appt, true, nil
}

func (f *fakeStore) EndSession(_ context.Context, id string, now time.Time) (model.Appointment, error) {
	appt := f.appts[id]
	if appt.Status == model.StatusCompleted {
		return *appt, nil
	}
	if _, err := Next(appt.Status, EventEndSession); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCompleted
	appt.ActualEnd = &now
	return *appt, nil
}

func (f *fakeStore) Cancel(_ context.Context, id, reason string) (model.Appointment, error) {
	appt := f.appts[id]
	if appt.Status == model.StatusCancelled {
		return *appt, nil
	}
	if _, err := Next(appt.Status, EventCancel); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	if appt.SlotID != nil {
		f.slots[*appt.SlotID] = model.SlotOpen
	}
	return *appt, nil
}

func (f *fakeStore) UpdateSchedule(_ context.Context, id string, day, start, end time.Time, mode, notes string) (model.Appointment, error) {
	appt := f.appts[id]
	if f.windowTaken(id, appt.NutritionistID, start) {
		return model.Appointment{}, ErrSlotUnavailable
	}
	appt.Day, appt.StartTime, appt.EndTime, appt.Mode, appt.Notes = day, start, end, mode, notes
	return *appt, nil
}

func (f *fakeStore) UpdateNotes(_ context.Context, id, notes string) (model.Appointment, error) {
	appt := f.appts[id]
	appt.Notes = notes
	return *appt, nil
}

func (f *fakeStore) ListByPatient(_ context.Context, patientID string, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByNutritionist(_ context.Context, nutritionistID string, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if a.NutritionistID == nutritionistID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeDirectory struct {
	nutrs map[string]model.Nutritionist
}

func (f *fakeDirectory) Get(_ context.Context, id string) (model.Nutritionist, error) {
	n, ok := f.nutrs[id]
	if !ok {
		return model.Nutritionist{}, ErrNotFound
	}
	return n, nil
}

type fakeGateway struct {
	createErr   error
	verdicts    []payments.Status
	verifyErr   error
	createCalls int
	verifyCalls int
}

func (f *fakeGateway) CreateIntent(_ context.Context, appointmentID string, _ int64, _ string) (payments.Intent, error) {
	f.createCalls++
	if f.createErr != nil {
		return payments.Intent{}, f.createErr
	}
	return payments.Intent{SessionToken: "tok_" + appointmentID, OrderID: "ord_" + appointmentID}, nil
}

func (f *fakeGateway) VerifyIntent(_ context.Context, _ string) (payments.Status, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	if len(f.verdicts) == 0 {
		return payments.StatusPending, nil
	}
	v := f.verdicts[0]
	if len(f.verdicts) > 1 {
		f.verdicts = f.verdicts[1:]
	}
	return v, nil
}

func rate(cents int64) *int64 { return &cents }

func newTestService(store *fakeStore, gw *fakeGateway) (*Service, *int) {
	dir := &fakeDirectory{nutrs: map[string]model.Nutritionist{
		"nut-1": {ID: "nut-1", FullName: "Dana Reyes", Kind: model.KindExpert, HourlyRateCents: rate(12000), AcceptingPatients: true},
		"nut-2": {ID: "nut-2", FullName: "Sam Ortiz", Kind: model.KindExpert, HourlyRateCents: rate(9000), AcceptingPatients: false},
		"nut-3": {ID: "nut-3", FullName: "Lee Park", Kind: model.KindInHouse, AcceptingPatients: true},
	}}
	svc := NewService(store, dir, gw, Config{VerifyAttempts: 3, SettleDelay: time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	sleeps := 0
	svc.sleep = func(context.Context, time.Duration) { sleeps++ }
	return svc, &sleeps
}

func window(svc *Service, hours int) (day, start, end time.Time) {
	day = svc.now().Add(48 * time.Hour).Truncate(24 * time.Hour)
	start = day.Add(10 * time.Hour)
	end = start.Add(time.Duration(hours) * time.Hour)
	return
}

var (
	patient = Actor{UserID: "pat-1", Role: RolePatient}
	doctor  = Actor{UserID: "nut-1", Role: RoleNutritionist}
)

func TestCreateBookingFromSlot(t *testing.T) {
	store := newFakeStore()
	store.slots["slot-1"] = model.SlotOpen
	svc, _ := newTestService(store, &fakeGateway{})

	res, err := svc.CreateBooking(context.Background(), patient, CreateRequest{SlotID: "slot-1"})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if res.Appointment.Status != model.StatusScheduled {
		t.Fatalf("status = %s, want scheduled", res.Appointment.Status)
	}
	if res.SessionToken != "" {
		t.Fatalf("slot booking must not carry a checkout token")
	}

	// The slot is taken now; a second booking loses the race.
	if _, err := svc.CreateBooking(context.Background(), Actor{UserID: "pat-2", Role: RolePatient}, CreateRequest{SlotID: "slot-1"}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("second booking err = %v, want ErrSlotUnavailable", err)
	}

	// Cancelling releases the slot and the loser can rebook.
	if _, err := svc.Cancel(context.Background(), patient, res.Appointment.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.CreateBooking(context.Background(), Actor{UserID: "pat-2", Role: RolePatient}, CreateRequest{SlotID: "slot-1"}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestCreateExpertBooking(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)
	day, start, end := window(svc, 1)

	res, err := svc.CreateBooking(context.Background(), patient, CreateRequest{
		NutritionistID: "nut-1", Day: day, StartTime: start, EndTime: end, Mode: model.ModeVirtual,
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if res.Appointment.Status != model.StatusPendingPayment {
		t.Fatalf("status = %s, want pending_payment", res.Appointment.Status)
	}
	if res.SessionToken == "" || res.OrderID == "" {
		t.Fatalf("expert booking must return a checkout handle, got %+v", res)
	}
	if res.Appointment.MeetingURL == "" {
		t.Fatalf("virtual booking must carry a meeting url")
	}
	if got := store.intents[res.Appointment.ID].AmountCents; got != 12000 {
		t.Fatalf("amount = %d, want 12000 for a 1h session at 12000/h", got)
	}
}

func TestCreateExpertBookingDefaultDuration(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	day, start, _ := window(svc, 1)

	res, err := svc.CreateBooking(context.Background(), patient, CreateRequest{
		NutritionistID: "nut-1", Day: day, StartTime: start, Mode: model.ModeVirtual,
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if got := res.Appointment.EndTime.Sub(res.Appointment.StartTime); got != 30*time.Minute {
		t.Fatalf("window = %s, want the 30m default", got)
	}
	if got := store.intents[res.Appointment.ID].AmountCents; got != 6000 {
		t.Fatalf("amount = %d, want 6000 for a 30m session at 12000/h", got)
	}
}

func TestCreateExpertBookingValidation(t *testing.T) {
	svc, _ := newTestService(newFakeStore(), &fakeGateway{})
	day, start, end := window(svc, 1)
	base := CreateRequest{NutritionistID: "nut-1", Day: day, StartTime: start, EndTime: end, Mode: model.ModeVirtual}

	tests := []struct {
		name string
		mut  func(*CreateRequest)
		want error
	}{
		{"not accepting", func(r *CreateRequest) { r.NutritionistID = "nut-2" }, ErrNotAccepting},
		{"no rate", func(r *CreateRequest) { r.NutritionistID = "nut-3" }, ErrInvalidOperation},
		{"unknown nutritionist", func(r *CreateRequest) { r.NutritionistID = "nope" }, ErrNotFound},
		{"bad mode", func(r *CreateRequest) { r.Mode = "phone" }, ErrInvalidOperation},
		{"inverted window", func(r *CreateRequest) { r.EndTime = r.StartTime.Add(-time.Hour) }, ErrInvalidRange},
		{"past day", func(r *CreateRequest) { r.Day = day.Add(-96 * time.Hour) }, ErrInvalidRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mut(&req)
			if _, err := svc.CreateBooking(context.Background(), patient, req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := svc.CreateBooking(context.Background(), doctor, base); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nutritionist booking err = %v, want ErrUnauthorized", err)
	}
}

func pendingAppointment(t *testing.T, svc *Service) model.Appointment {
	t.Helper()
	day, start, end := window(svc, 1)
	res, err := svc.CreateBooking(context.Background(), patient, CreateRequest{
		NutritionistID: "nut-1", Day: day, StartTime: start, EndTime: end, Mode: model.ModeVirtual,
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	return res.Appointment
}

func TestConfirmPaymentSettlesAfterRetry(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{verdicts: []payments.Status{payments.StatusPending, payments.StatusSucceeded}}
	svc, sleeps := newTestService(store, gw)
	appt := pendingAppointment(t, svc)

	got, err := svc.ConfirmPayment(context.Background(), patient, appt.ID)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	if gw.verifyCalls != 2 || *sleeps != 2 {
		t.Fatalf("verifyCalls = %d sleeps = %d, want 2 and 2", gw.verifyCalls, *sleeps)
	}

	// Re-confirming is a no-op and never reaches the gateway again.
	gw.verifyCalls = 0
	if _, err := svc.ConfirmPayment(context.Background(), patient, appt.ID); err != nil {
		t.Fatalf("idempotent confirm: %v", err)
	}
	if gw.verifyCalls != 0 {
		t.Fatalf("idempotent confirm hit the gateway %d times", gw.verifyCalls)
	}
}

func TestConfirmPaymentFailureCancels(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakeGateway
	}{
		{"declined", &fakeGateway{verdicts: []payments.Status{payments.StatusFailed}}},
		{"never settles", &fakeGateway{verdicts: []payments.Status{payments.StatusPending}}},
		{"gateway error", &fakeGateway{verifyErr: errors.New("boom")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc, _ := newTestService(store, tc.gw)
			appt := pendingAppointment(t, svc)

			got, err := svc.ConfirmPayment(context.Background(), patient, appt.ID)
			if !errors.Is(err, ErrPaymentFailed) {
				t.Fatalf("err = %v, want ErrPaymentFailed", err)
			}
			if got.Status != model.StatusCancelled {
				t.Fatalf("status = %s, want cancelled", got.Status)
			}
			if store.intents[appt.ID].Status != model.IntentFailed {
				t.Fatalf("intent status = %s, want failed", store.intents[appt.ID].Status)
			}
		})
	}
}

func confirmedVirtual(t *testing.T, svc *Service, store *fakeStore, gw *fakeGateway) model.Appointment {
	t.Helper()
	gw.verdicts = []payments.Status{payments.StatusSucceeded}
	appt := pendingAppointment(t, svc)
	got, err := svc.ConfirmPayment(context.Background(), patient, appt.ID)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	return got
}

func TestStartSessionEmitsOnce(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)
	appt := confirmedVirtual(t, svc, store, gw)

	got, err := svc.StartSession(context.Background(), doctor, appt.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got.Status != model.StatusInProgress || got.ActualStart == nil {
		t.Fatalf("got %+v, want in_progress with actual_start", got)
	}

	// A retried start is a no-op: same state, no second event.
	if _, err := svc.StartSession(context.Background(), doctor, appt.ID); err != nil {
		t.Fatalf("retried StartSession: %v", err)
	}
	if store.emitted != 1 {
		t.Fatalf("emitted %d session-started events, want exactly 1", store.emitted)
	}
}

func TestStartSessionGuards(t *testing.T) {
	store := newFakeStore()
	store.slots["slot-1"] = model.SlotOpen
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)

	pending := pendingAppointment(t, svc)
	if _, err := svc.StartSession(context.Background(), doctor, pending.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pending_payment start err = %v, want ErrInvalidState", err)
	}

	confirmed := confirmedVirtual(t, svc, store, gw)
	if _, err := svc.StartSession(context.Background(), patient, confirmed.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("patient start err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.StartSession(context.Background(), Actor{UserID: "nut-9", Role: RoleNutritionist}, confirmed.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("other nutritionist start err = %v, want ErrUnauthorized", err)
	}

	res, err := svc.CreateBooking(context.Background(), patient, CreateRequest{SlotID: "slot-1"})
	if err != nil {
		t.Fatalf("slot booking: %v", err)
	}
	store.appts[res.Appointment.ID].NutritionistID = doctor.UserID
	if _, err := svc.StartSession(context.Background(), doctor, res.Appointment.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("in-person start err = %v, want ErrInvalidOperation", err)
	}
}

func TestEndSession(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)
	appt := confirmedVirtual(t, svc, store, gw)

	if _, err := svc.EndSession(context.Background(), doctor, appt.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("end before start err = %v, want ErrInvalidState", err)
	}
	if _, err := svc.StartSession(context.Background(), doctor, appt.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	got, err := svc.EndSession(context.Background(), doctor, appt.ID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if got.Status != model.StatusCompleted || got.ActualEnd == nil {
		t.Fatalf("got %+v, want completed with actual_end", got)
	}
	// Ending twice is a no-op.
	if _, err := svc.EndSession(context.Background(), doctor, appt.ID); err != nil {
		t.Fatalf("repeated EndSession: %v", err)
	}
}

func TestCancelGuards(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)
	appt := confirmedVirtual(t, svc, store, gw)

	if _, err := svc.Cancel(context.Background(), Actor{UserID: "pat-9", Role: RolePatient}, appt.ID, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger cancel err = %v, want ErrUnauthorized", err)
	}

	if _, err := svc.StartSession(context.Background(), doctor, appt.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := svc.EndSession(context.Background(), doctor, appt.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), patient, appt.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel completed err = %v, want ErrInvalidState", err)
	}

	other := confirmedVirtual(t, svc, store, gw)
	if _, err := svc.Cancel(context.Background(), patient, other.ID, "conflict"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// Cancelling again is a no-op.
	if _, err := svc.Cancel(context.Background(), patient, other.ID, "again"); err != nil {
		t.Fatalf("repeated Cancel: %v", err)
	}
}

func TestReschedule(t *testing.T) {
	store := newFakeStore()
	store.slots["slot-1"] = model.SlotOpen
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)

	// Slot-linked bookings keep their window; only notes move.
	res, err := svc.CreateBooking(context.Background(), patient, CreateRequest{SlotID: "slot-1"})
	if err != nil {
		t.Fatalf("slot booking: %v", err)
	}
	day, start, end := window(svc, 2)
	got, err := svc.Reschedule(context.Background(), patient, res.Appointment.ID, RescheduleRequest{
		Day: day, StartTime: start, EndTime: end, Notes: "bring lab results",
	})
	if err != nil {
		t.Fatalf("Reschedule slot booking: %v", err)
	}
	if got.Notes != "bring lab results" {
		t.Fatalf("notes = %q", got.Notes)
	}
	if !got.StartTime.Equal(res.Appointment.StartTime) {
		t.Fatalf("slot-linked window moved from %v to %v", res.Appointment.StartTime, got.StartTime)
	}

	// Expert bookings may move their window after confirmation.
	appt := confirmedVirtual(t, svc, store, gw)
	got, err = svc.Reschedule(context.Background(), patient, appt.ID, RescheduleRequest{
		Day: day, StartTime: start, EndTime: end, Notes: "moved",
	})
	if err != nil {
		t.Fatalf("Reschedule expert booking: %v", err)
	}
	if !got.StartTime.Equal(start) || got.Status != model.StatusConfirmed {
		t.Fatalf("got start %v status %s, want %v confirmed", got.StartTime, got.Status, start)
	}

	if _, err := svc.Reschedule(context.Background(), doctor, appt.ID, RescheduleRequest{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nutritionist reschedule err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.StartSession(context.Background(), doctor, appt.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := svc.Reschedule(context.Background(), patient, appt.ID, RescheduleRequest{Day: day, StartTime: start, EndTime: end}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("in-progress reschedule err = %v, want ErrInvalidState", err)
	}
}

func TestRescheduleOntoTakenWindow(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)

	first := confirmedVirtual(t, svc, store, gw)

	day, start, _ := window(svc, 1)
	later := start.Add(4 * time.Hour)
	res, err := svc.CreateBooking(context.Background(), patient, CreateRequest{
		NutritionistID: "nut-1", Day: day, StartTime: later, EndTime: later.Add(time.Hour), Mode: model.ModeVirtual,
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	second, err := svc.ConfirmPayment(context.Background(), patient, res.Appointment.ID)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	_, err = svc.Reschedule(context.Background(), patient, second.ID, RescheduleRequest{
		Day: first.Day, StartTime: first.StartTime, EndTime: first.EndTime,
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("reschedule onto held window err = %v, want ErrSlotUnavailable", err)
	}
}

func TestDuplicateWindowRejectedBeforeCheckout(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)

	pendingAppointment(t, svc)
	if gw.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", gw.createCalls)
	}

	day, start, end := window(svc, 1)
	_, err := svc.CreateBooking(context.Background(), patient, CreateRequest{
		NutritionistID: "nut-1", Day: day, StartTime: start, EndTime: end, Mode: model.ModeVirtual,
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("duplicate window err = %v, want ErrSlotUnavailable", err)
	}
	if gw.createCalls != 1 {
		t.Fatalf("createCalls = %d after duplicate, want 1", gw.createCalls)
	}
}
