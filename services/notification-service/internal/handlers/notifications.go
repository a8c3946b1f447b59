package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nutricare/nutribook/libs/httpx"
	"github.com/nutricare/nutribook/services/notification-service/internal/storage"
)

type Handler struct {
	repo   *storage.Repository
	logger *slog.Logger
}

func New(repo *storage.Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

type notificationResponse struct {
	ID            string  `json:"id"`
	AppointmentID string  `json:"appointment_id"`
	Title         string  `json:"title"`
	Message       string  `json:"message"`
	MeetingURL    string  `json:"meeting_url,omitempty"`
	ReadAt        *string `json:"read_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func toResponse(n storage.Notification) notificationResponse {
	resp := notificationResponse{
		ID:            n.ID,
		AppointmentID: n.AppointmentID,
		Title:         n.Title,
		Message:       n.Message,
		MeetingURL:    n.MeetingURL,
		CreatedAt:     n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		s := n.ReadAt.UTC().Format(time.RFC3339)
		resp.ReadAt = &s
	}
	return resp
}

func principal(w http.ResponseWriter, r *http.Request) (httpx.Principal, bool) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return httpx.Principal{}, false
	}
	return p, true
}

// List returns the caller's notifications. unread=true narrows to unread
// only, which is what the bell badge polls.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var (
		items []storage.Notification
		err   error
	)
	if r.URL.Query().Get("unread") == "true" {
		items, err = h.repo.ListUnread(r.Context(), p.UserID)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		items, err = h.repo.List(r.Context(), p.UserID, limit)
	}
	if err != nil {
		http.Error(w, "failed to load notifications", http.StatusInternalServerError)
		return
	}

	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, toResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

type markReadRequest struct {
	NotificationID string `json:"notification_id"`
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.NotificationID = strings.TrimSpace(req.NotificationID)
	if req.NotificationID == "" {
		http.Error(w, "notification_id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.MarkRead(r.Context(), req.NotificationID, p.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to mark read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	updated, err := h.repo.MarkAllRead(r.Context(), p.UserID)
	if err != nil {
		http.Error(w, "failed to mark read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "updated": updated})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
