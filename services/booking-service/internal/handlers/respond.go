package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
	"github.com/nutricare/nutribook/services/booking-service/internal/model"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps domain sentinels onto HTTP statuses. Conflict-shaped
// failures (lost races, illegal transitions) are 409 so clients can
// distinguish "try another slot" from bad input.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, booking.ErrPaymentFailed):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrSlotBooked),
		errors.Is(err, booking.ErrOverlap),
		errors.Is(err, booking.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidRange),
		errors.Is(err, booking.ErrInvalidOperation),
		errors.Is(err, booking.ErrNotAccepting):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type appointmentResponse struct {
	ID             string  `json:"id"`
	PatientID      string  `json:"patient_id"`
	NutritionistID string  `json:"nutritionist_id"`
	Day            string  `json:"day"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	Mode           string  `json:"mode"`
	Notes          string  `json:"notes,omitempty"`
	Status         string  `json:"status"`
	SlotID         *string `json:"slot_id,omitempty"`
	MeetingURL     string  `json:"meeting_url,omitempty"`
	ActualStart    *string `json:"actual_start,omitempty"`
	ActualEnd      *string `json:"actual_end,omitempty"`
	CancelledAt    *string `json:"cancelled_at,omitempty"`
	CancelReason   string  `json:"cancellation_reason,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	fmtTime := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := t.UTC().Format(time.RFC3339)
		return &s
	}
	return appointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		NutritionistID: a.NutritionistID,
		Day:            a.Day.UTC().Format("2006-01-02"),
		StartTime:      a.StartTime.UTC().Format(time.RFC3339),
		EndTime:        a.EndTime.UTC().Format(time.RFC3339),
		Mode:           a.Mode,
		Notes:          a.Notes,
		Status:         a.Status,
		SlotID:         a.SlotID,
		MeetingURL:     a.MeetingURL,
		ActualStart:    fmtTime(a.ActualStart),
		ActualEnd:      fmtTime(a.ActualEnd),
		CancelledAt:    fmtTime(a.CancelledAt),
		CancelReason:   a.CancelReason,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toAppointmentResponses(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}
