package doctor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opdesk/clinic-queue/internal/schedule"
	"github.com/opdesk/clinic-queue/pkg/logging"
)

// Handler provides HTTP endpoints for staff-side doctor profile management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a doctor profile HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes returns a chi router with doctor admin routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{doctorID}", h.GetProfile)
	r.Put("/{doctorID}", h.UpdateProfile)
	r.Post("/{doctorID}/status", h.SetStatus)
	return r
}

// GetProfile returns the doctor profile.
// GET /admin/doctors/{doctorID}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if doctorID == "" {
		http.Error(w, `{"error": "doctor_id required"}`, http.StatusBadRequest)
		return
	}

	d, err := h.store.Get(r.Context(), doctorID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, `{"error": "doctor not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get doctor profile", "doctor_id", doctorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d); err != nil {
		h.logger.Error("failed to encode doctor profile", "doctor_id", doctorID, "error", err)
	}
}

// UpdateProfileRequest is the request body for creating or updating a doctor.
type UpdateProfileRequest struct {
	Name                  string                        `json:"name,omitempty"`
	AverageConsultMinutes *int                          `json:"average_consult_minutes,omitempty"`
	Availability          map[string][]schedule.Session `json:"availability,omitempty"`
}

// UpdateProfile creates or updates the doctor profile.
// PUT /admin/doctors/{doctorID}
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if doctorID == "" {
		http.Error(w, `{"error": "doctor_id required"}`, http.StatusBadRequest)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	d, err := h.store.Get(r.Context(), doctorID)
	if errors.Is(err, ErrNotFound) {
		d = &Doctor{ID: doctorID}
	} else if err != nil {
		h.logger.Error("failed to load doctor profile", "doctor_id", doctorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		d.Name = req.Name
	}
	if req.AverageConsultMinutes != nil {
		d.AverageConsultMinutes = *req.AverageConsultMinutes
	}
	if req.Availability != nil {
		d.Availability = req.Availability
	}

	if err := h.store.Set(r.Context(), d); err != nil {
		h.logger.Error("failed to save doctor profile", "doctor_id", doctorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("doctor profile updated", "doctor_id", doctorID)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d); err != nil {
		h.logger.Error("failed to encode doctor profile", "doctor_id", doctorID, "error", err)
	}
}

// SetStatusRequest flips the doctor's consultation status.
type SetStatusRequest struct {
	Status string `json:"status"` // "in" or "out"
}

// SetStatus marks the doctor in or out of consultation.
// POST /admin/doctors/{doctorID}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if doctorID == "" {
		http.Error(w, `{"error": "doctor_id required"}`, http.StatusBadRequest)
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	err := h.store.SetConsultationStatus(r.Context(), doctorID, req.Status)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, `{"error": "doctor not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to set consultation status", "doctor_id", doctorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
