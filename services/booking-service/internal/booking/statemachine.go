package booking

import (
	"fmt"

	"github.com/nutricare/nutribook/services/booking-service/internal/model"
)

// Event is a lifecycle trigger applied to an appointment.
type Event string

const (
	EventPaymentSucceeded Event = "payment_succeeded"
	EventPaymentFailed    Event = "payment_failed"
	EventStartSession     Event = "start_session"
	EventEndSession       Event = "end_session"
	EventCancel           Event = "cancel"
	EventReschedule       Event = "reschedule"
)

// transitions holds the full lifecycle table. Completed and cancelled are
// terminal: they have no outgoing edges.
var transitions = map[string]map[Event]string{
	model.StatusPendingPayment: {
		EventPaymentSucceeded: model.StatusConfirmed,
		EventPaymentFailed:    model.StatusCancelled,
		EventCancel:           model.StatusCancelled,
	},
	model.StatusScheduled: {
		EventStartSession: model.StatusInProgress,
		EventCancel:       model.StatusCancelled,
		EventReschedule:   model.StatusScheduled,
	},
	model.StatusConfirmed: {
		EventStartSession: model.StatusInProgress,
		EventCancel:       model.StatusCancelled,
		EventReschedule:   model.StatusConfirmed,
	},
	model.StatusInProgress: {
		EventEndSession: model.StatusCompleted,
		EventCancel:     model.StatusCancelled,
	},
}

// Next returns the status reached by applying event to current.
// Illegal edges return ErrInvalidState.
func Next(current string, event Event) (string, error) {
	if to, ok := transitions[current][event]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s does not accept %s", ErrInvalidState, current, event)
}

// IsBooked reports whether the appointment is booked and awaiting its
// session. Scheduled (free in-house) and confirmed (paid) are equivalent
// here.
func IsBooked(status string) bool {
	return status == model.StatusScheduled || status == model.StatusConfirmed
}

func IsTerminal(status string) bool {
	return status == model.StatusCompleted || status == model.StatusCancelled
}
