package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nutricare/nutribook/libs/httpx"
	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
)

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{booking.ErrNotFound, http.StatusNotFound},
		{booking.ErrUnauthorized, http.StatusForbidden},
		{booking.ErrPaymentFailed, http.StatusPaymentRequired},
		{booking.ErrSlotUnavailable, http.StatusConflict},
		{booking.ErrSlotBooked, http.StatusConflict},
		{booking.ErrOverlap, http.StatusConflict},
		{booking.ErrInvalidState, http.StatusConflict},
		{booking.ErrInvalidRange, http.StatusUnprocessableEntity},
		{booking.ErrInvalidOperation, http.StatusUnprocessableEntity},
		{booking.ErrNotAccepting, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		respondError(rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("respondError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestParseWindow(t *testing.T) {
	day, start, end, msg := parseWindow("2026-03-12", "2026-03-12T10:00:00Z", "2026-03-12T11:00:00Z")
	if msg != "" {
		t.Fatalf("parseWindow: %s", msg)
	}
	if day.Format("2006-01-02") != "2026-03-12" || !end.After(start) {
		t.Fatalf("parsed day=%v start=%v end=%v", day, start, end)
	}

	if _, _, _, msg := parseWindow("12/03/2026", "2026-03-12T10:00:00Z", "2026-03-12T11:00:00Z"); msg == "" {
		t.Fatal("want error for bad day format")
	}
	if _, _, _, msg := parseWindow("2026-03-12", "10:00", "2026-03-12T11:00:00Z"); msg == "" {
		t.Fatal("want error for bad start_time format")
	}
	if _, _, end, msg := parseWindow("2026-03-12", "2026-03-12T10:00:00Z", ""); msg != "" || !end.IsZero() {
		t.Fatalf("empty end_time should parse to zero, got end=%v msg=%q", end, msg)
	}
}

func TestAppointmentsRequiresAuth(t *testing.T) {
	h := NewBookingHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	h.Appointments(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/appointments", nil)
	rec = httptest.NewRecorder()
	h.Appointments(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE = %d, want 405", rec.Code)
	}
}

func TestActionRequestValidation(t *testing.T) {
	h := NewBookingHandler(nil, nil)
	// Dev mode middleware resolves principals from headers.
	wrapped := httpx.WithPrincipal(httpx.AuthConfig{})(http.HandlerFunc(h.ConfirmPayment))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/confirm-payment", strings.NewReader(`{}`))
	req.Header.Set("X-User-Id", "pat-1")
	req.Header.Set("X-Role", "patient")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing appointment_id = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments/confirm-payment", strings.NewReader(`not json`))
	req.Header.Set("X-User-Id", "pat-1")
	req.Header.Set("X-Role", "patient")
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d, want 400", rec.Code)
	}
}

func TestSlotHandlerRequiresNutritionist(t *testing.T) {
	h := NewSlotHandler(nil, nil)
	wrapped := httpx.WithPrincipal(httpx.AuthConfig{})(http.HandlerFunc(h.Add))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/slots", strings.NewReader(`{}`))
	req.Header.Set("X-User-Id", "pat-1")
	req.Header.Set("X-Role", "patient")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient adding slot = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/slots", strings.NewReader(`{"day":"bad"}`))
	req.Header.Set("X-User-Id", "nut-1")
	req.Header.Set("X-Role", "nutritionist")
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad day = %d, want 400", rec.Code)
	}
}

func TestAvailabilityValidation(t *testing.T) {
	h := NewSlotHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing params = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?nutritionist_id=n1&day=tomorrow", nil)
	rec = httptest.NewRecorder()
	h.Availability(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad day = %d, want 400", rec.Code)
	}
}
