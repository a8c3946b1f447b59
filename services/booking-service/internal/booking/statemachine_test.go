package booking

import (
	"errors"
	"testing"

	"github.com/nutricare/nutribook/services/booking-service/internal/model"
)

func TestNext_Table(t *testing.T) {
	cases := []struct {
		from  string
		event Event
		to    string
		ok    bool
	}{
		{model.StatusPendingPayment, EventPaymentSucceeded, model.StatusConfirmed, true},
		{model.StatusPendingPayment, EventPaymentFailed, model.StatusCancelled, true},
		{model.StatusPendingPayment, EventCancel, model.StatusCancelled, true},
		{model.StatusPendingPayment, EventStartSession, "", false},
		{model.StatusScheduled, EventStartSession, model.StatusInProgress, true},
		{model.StatusScheduled, EventReschedule, model.StatusScheduled, true},
		{model.StatusScheduled, EventEndSession, "", false},
		{model.StatusConfirmed, EventStartSession, model.StatusInProgress, true},
		{model.StatusConfirmed, EventReschedule, model.StatusConfirmed, true},
		{model.StatusConfirmed, EventPaymentSucceeded, "", false},
		{model.StatusInProgress, EventEndSession, model.StatusCompleted, true},
		{model.StatusInProgress, EventCancel, model.StatusCancelled, true},
		{model.StatusInProgress, EventReschedule, "", false},
		{model.StatusCompleted, EventCancel, "", false},
		{model.StatusCompleted, EventStartSession, "", false},
		{model.StatusCancelled, EventCancel, "", false},
		{model.StatusCancelled, EventPaymentSucceeded, "", false},
	}

	for _, tc := range cases {
		got, err := Next(tc.from, tc.event)
		if tc.ok {
			if err != nil {
				t.Errorf("Next(%s, %s): unexpected error %v", tc.from, tc.event, err)
				continue
			}
			if got != tc.to {
				t.Errorf("Next(%s, %s) = %s, want %s", tc.from, tc.event, got, tc.to)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("Next(%s, %s): want ErrInvalidState, got %v", tc.from, tc.event, err)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsBooked(model.StatusScheduled) || !IsBooked(model.StatusConfirmed) {
		t.Fatal("scheduled and confirmed must both count as booked")
	}
	if IsBooked(model.StatusPendingPayment) || IsBooked(model.StatusInProgress) {
		t.Fatal("pending_payment and in_progress are not booked states")
	}
	if !IsTerminal(model.StatusCompleted) || !IsTerminal(model.StatusCancelled) {
		t.Fatal("completed and cancelled are terminal")
	}
	if IsTerminal(model.StatusConfirmed) {
		t.Fatal("confirmed is not terminal")
	}
}
