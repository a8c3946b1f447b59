package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nutricare/nutribook/libs/httpx"
	"github.com/nutricare/nutribook/services/notification-service/internal/storage"
)

func TestListRequiresAuth(t *testing.T) {
	h := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/notifications", nil)
	rec = httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST list = %d, want 405", rec.Code)
	}
}

func TestResponseCarriesMeetingURL(t *testing.T) {
	n := storage.Notification{
		ID:            "n-1",
		AppointmentID: "appt-1",
		Title:         "Session started",
		Message:       "Your nutritionist has started the session.",
		MeetingURL:    "https://meet.nutricare.app/nutricare-abc12345",
		CreatedAt:     time.Now(),
	}
	got := toResponse(n)
	if got.MeetingURL != n.MeetingURL {
		t.Fatalf("meeting url = %q, want %q", got.MeetingURL, n.MeetingURL)
	}

	// Clients join from the structured field, not by scraping the message.
	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"meeting_url":"`+n.MeetingURL+`"`) {
		t.Fatalf("response %s lacks meeting_url", b)
	}

	if b, err = json.Marshal(toResponse(storage.Notification{ID: "n-2", CreatedAt: time.Now()})); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "meeting_url") {
		t.Fatalf("empty meeting_url should be omitted, got %s", b)
	}
}

func TestMarkReadValidation(t *testing.T) {
	h := New(nil, nil)
	wrapped := httpx.WithPrincipal(httpx.AuthConfig{})(http.HandlerFunc(h.MarkRead))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read", strings.NewReader(`{}`))
	req.Header.Set("X-User-Id", "pat-1")
	req.Header.Set("X-Role", "patient")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing notification_id = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read", strings.NewReader(`oops`))
	req.Header.Set("X-User-Id", "pat-1")
	req.Header.Set("X-Role", "patient")
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d, want 400", rec.Code)
	}
}
