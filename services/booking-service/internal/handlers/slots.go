package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nutricare/nutribook/libs/httpx"
	"github.com/nutricare/nutribook/services/booking-service/internal/model"
	"github.com/nutricare/nutribook/services/booking-service/internal/slotstore"
)

type SlotHandler struct {
	store  *slotstore.Store
	logger *slog.Logger
}

func NewSlotHandler(store *slotstore.Store, logger *slog.Logger) *SlotHandler {
	return &SlotHandler{store: store, logger: logger}
}

type slotResponse struct {
	ID             string `json:"id"`
	NutritionistID string `json:"nutritionist_id"`
	Day            string `json:"day"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
}

func toSlotResponse(s model.Slot) slotResponse {
	return slotResponse{
		ID:             s.ID,
		NutritionistID: s.NutritionistID,
		Day:            s.Day.UTC().Format("2006-01-02"),
		StartTime:      s.StartTime.UTC().Format(time.RFC3339),
		EndTime:        s.EndTime.UTC().Format(time.RFC3339),
		Status:         s.Status,
	}
}

func toSlotResponses(slots []model.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func nutritionistFrom(w http.ResponseWriter, r *http.Request) (httpx.Principal, bool) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return httpx.Principal{}, false
	}
	if p.Role != httpx.RoleNutritionist {
		http.Error(w, "nutritionist role required", http.StatusForbidden)
		return httpx.Principal{}, false
	}
	return p, true
}

type addSlotRequest struct {
	Day       string `json:"day"`        // 2006-01-02
	StartTime string `json:"start_time"` // RFC3339
	EndTime   string `json:"end_time"`   // RFC3339
}

func (h *SlotHandler) Add(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := nutritionistFrom(w, r)
	if !ok {
		return
	}

	var req addSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	day, start, end, perr := parseWindow(req.Day, req.StartTime, req.EndTime)
	if perr != "" {
		http.Error(w, perr, http.StatusBadRequest)
		return
	}

	slot, err := h.store.Add(r.Context(), p.UserID, day, start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"slot": toSlotResponse(slot)})
}

type removeSlotRequest struct {
	SlotID string `json:"slot_id"`
}

func (h *SlotHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := nutritionistFrom(w, r)
	if !ok {
		return
	}

	var req removeSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	if req.SlotID == "" {
		http.Error(w, "slot_id is required", http.StatusBadRequest)
		return
	}

	if err := h.store.Remove(r.Context(), p.UserID, req.SlotID); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Mine returns the calling nutritionist's upcoming slots partitioned into
// available and booked.
func (h *SlotHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := nutritionistFrom(w, r)
	if !ok {
		return
	}

	from := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid from, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		from = parsed
	}

	slots, err := h.store.ListUpcoming(r.Context(), p.UserID, from)
	if err != nil {
		respondError(w, err)
		return
	}

	available := make([]slotResponse, 0)
	booked := make([]slotResponse, 0)
	for _, s := range slots {
		if s.Status == model.SlotOpen {
			available = append(available, toSlotResponse(s))
		} else {
			booked = append(booked, toSlotResponse(s))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": available,
		"booked":    booked,
	})
}

// Availability is the patient-facing view: only open slots for one
// nutritionist on one day.
func (h *SlotHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	nutritionistID := strings.TrimSpace(r.URL.Query().Get("nutritionist_id"))
	dayStr := strings.TrimSpace(r.URL.Query().Get("day"))
	if nutritionistID == "" || dayStr == "" {
		http.Error(w, "nutritionist_id and day are required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", dayStr)
	if err != nil {
		http.Error(w, "invalid day, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.store.List(r.Context(), nutritionistID, day)
	if err != nil {
		respondError(w, err)
		return
	}

	open := make([]slotResponse, 0)
	for _, s := range slots {
		if s.Status == model.SlotOpen {
			open = append(open, toSlotResponse(s))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": open})
}
