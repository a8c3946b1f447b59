package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nutricare/nutribook/services/booking-service/internal/model"
	"github.com/nutricare/nutribook/services/booking-service/internal/storage"
)

type NutritionistHandler struct {
	repo   *storage.NutritionistRepository
	logger *slog.Logger
}

func NewNutritionistHandler(repo *storage.NutritionistRepository, logger *slog.Logger) *NutritionistHandler {
	return &NutritionistHandler{repo: repo, logger: logger}
}

type nutritionistResponse struct {
	ID                string `json:"id"`
	FullName          string `json:"full_name"`
	Kind              string `json:"kind"`
	Specialization    string `json:"specialization,omitempty"`
	HourlyRateCents   *int64 `json:"hourly_rate_cents,omitempty"`
	AcceptingPatients bool   `json:"accepting_patients"`
	CreatedAt         string `json:"created_at"`
}

func toNutritionistResponse(n model.Nutritionist) nutritionistResponse {
	return nutritionistResponse{
		ID:                n.ID,
		FullName:          n.FullName,
		Kind:              n.Kind,
		Specialization:    n.Specialization,
		HourlyRateCents:   n.HourlyRateCents,
		AcceptingPatients: n.AcceptingPatients,
		CreatedAt:         n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List is the public directory. kind filters in_house vs expert;
// accepting=true hides nutritionists not taking new patients.
func (h *NutritionistHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind != "" && kind != model.KindInHouse && kind != model.KindExpert {
		http.Error(w, "invalid kind", http.StatusBadRequest)
		return
	}
	acceptingOnly := r.URL.Query().Get("accepting") == "true"

	nutrs, err := h.repo.List(r.Context(), kind, acceptingOnly)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]nutritionistResponse, 0, len(nutrs))
	for _, n := range nutrs {
		out = append(out, toNutritionistResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"nutritionists": out})
}

func (h *NutritionistHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	n, err := h.repo.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nutritionist": toNutritionistResponse(n)})
}
