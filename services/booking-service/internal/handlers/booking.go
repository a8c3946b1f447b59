package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nutricare/nutribook/libs/httpx"
	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

func actorFrom(r *http.Request) (booking.Actor, bool) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		return booking.Actor{}, false
	}
	return booking.Actor{UserID: p.UserID, Role: p.Role}, true
}

type createRequest struct {
	NutritionistID string `json:"nutritionist_id"`
	SlotID         string `json:"slot_id"`
	Day            string `json:"day"`        // 2006-01-02
	StartTime      string `json:"start_time"` // RFC3339
	EndTime        string `json:"end_time"`   // RFC3339
	Mode           string `json:"mode"`
	Notes          string `json:"notes"`
}

// Appointments routes POST (create) and GET (list mine) on the collection.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.NutritionistID = strings.TrimSpace(req.NutritionistID)

	sreq := booking.CreateRequest{
		NutritionistID: req.NutritionistID,
		SlotID:         req.SlotID,
		Mode:           strings.TrimSpace(req.Mode),
		Notes:          strings.TrimSpace(req.Notes),
	}
	if req.SlotID == "" {
		if req.NutritionistID == "" {
			http.Error(w, "slot_id or nutritionist_id is required", http.StatusBadRequest)
			return
		}
		day, start, end, perr := parseWindow(req.Day, req.StartTime, req.EndTime)
		if perr != "" {
			http.Error(w, perr, http.StatusBadRequest)
			return
		}
		sreq.Day, sreq.StartTime, sreq.EndTime = day, start, end
	}

	res, err := h.svc.CreateBooking(r.Context(), actor, sreq)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := map[string]any{"appointment": toAppointmentResponse(res.Appointment)}
	if res.SessionToken != "" {
		resp["session_token"] = res.SessionToken
		resp["order_id"] = res.OrderID
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	appts, err := h.svc.ListMine(r.Context(), actor, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentResponses(appts)})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentResponse(appt)})
}

type appointmentActionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
}

func (h *BookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.actionRequest(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.ConfirmPayment(r.Context(), actor, req.AppointmentID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentResponse(appt)})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.actionRequest(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), actor, req.AppointmentID, strings.TrimSpace(req.Reason))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentResponse(appt)})
}

func (h *BookingHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.actionRequest(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.StartSession(r.Context(), actor, req.AppointmentID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentResponse(appt)})
}

func (h *BookingHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.actionRequest(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.EndSession(r.Context(), actor, req.AppointmentID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentResponse(appt)})
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Day           string `json:"day"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Mode          string `json:"mode"`
	Notes         string `json:"notes"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	sreq := booking.RescheduleRequest{
		Mode:  strings.TrimSpace(req.Mode),
		Notes: strings.TrimSpace(req.Notes),
	}
	// Window fields are optional for slot-linked appointments (notes only).
	if req.Day != "" || req.StartTime != "" || req.EndTime != "" {
		day, start, end, perr := parseWindow(req.Day, req.StartTime, req.EndTime)
		if perr != "" {
			http.Error(w, perr, http.StatusBadRequest)
			return
		}
		sreq.Day, sreq.StartTime, sreq.EndTime = day, start, end
	}

	appt, err := h.svc.Reschedule(r.Context(), actor, req.AppointmentID, sreq)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentResponse(appt)})
}

func (h *BookingHandler) actionRequest(w http.ResponseWriter, r *http.Request) (booking.Actor, appointmentActionRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return booking.Actor{}, appointmentActionRequest{}, false
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return booking.Actor{}, appointmentActionRequest{}, false
	}
	var req appointmentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return booking.Actor{}, appointmentActionRequest{}, false
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return booking.Actor{}, appointmentActionRequest{}, false
	}
	return actor, req, true
}

func parseWindow(dayStr, startStr, endStr string) (day, start, end time.Time, errMsg string) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(dayStr))
	if err != nil {
		return day, start, end, "invalid day, want YYYY-MM-DD"
	}
	start, err = time.Parse(time.RFC3339, strings.TrimSpace(startStr))
	if err != nil {
		return day, start, end, "invalid start_time, want RFC3339"
	}
	if trimmed := strings.TrimSpace(endStr); trimmed != "" {
		end, err = time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return day, start, end, "invalid end_time, want RFC3339"
		}
	}
	return day, start, end, ""
}
