package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opdesk/clinic-queue/internal/doctor"
	"github.com/opdesk/clinic-queue/internal/schedule"
	"github.com/opdesk/clinic-queue/pkg/logging"
)

// Handler exposes the booking service over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates the booking HTTP handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the public booking routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/advance", h.BookAdvance)
	r.Post("/walkin", h.BookWalkIn)
	return r
}

// AdminRoutes returns the staff-only routes.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/appointments/{appointmentID}/status", h.UpdateStatus)
	r.Post("/breaks", h.DeclareBreak)
	return r
}

// bookRequest is the JSON body for both booking channels.
type bookRequest struct {
	DoctorID     string `json:"doctor_id"`
	PatientID    string `json:"patient_id"`
	PatientName  string `json:"patient_name,omitempty"`
	PatientEmail string `json:"patient_email,omitempty"`
	Date         string `json:"date"`
	SessionIndex *int   `json:"session_index,omitempty"`
}

// bookResponse echoes the allocation back to the caller.
type bookResponse struct {
	AppointmentID string `json:"appointment_id"`
	Token         string `json:"token"`
	Date          string `json:"date"`
	SessionIndex  int    `json:"session_index"`
	SlotIndex     int    `json:"slot_index"`
	Time          string `json:"time"`
	Status        string `json:"status"`
}

// BookAdvance handles POST /bookings/advance.
func (h *Handler) BookAdvance(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, ChannelAdvance)
}

// BookWalkIn handles POST /bookings/walkin.
func (h *Handler) BookWalkIn(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, ChannelWalkIn)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request, channel Channel) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if req.DoctorID == "" || req.PatientID == "" || req.Date == "" {
		http.Error(w, `{"error": "doctor_id, patient_id and date are required"}`, http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Book(r.Context(), channel, BookingRequest{
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		PatientName:      req.PatientName,
		PatientEmail:     req.PatientEmail,
		Date:             req.Date,
		PreferredSession: req.SessionIndex,
	})
	if err != nil {
		h.writeError(w, err, "book", req.DoctorID)
		return
	}

	writeJSON(w, http.StatusCreated, bookResponse{
		AppointmentID: appt.ID.String(),
		Token:         appt.Token(),
		Date:          appt.Date,
		SessionIndex:  appt.SessionIndex,
		SlotIndex:     appt.SlotIndex,
		Time:          appt.TimeLabel,
		Status:        string(appt.Status),
	})
}

// updateStatusRequest is the staff status-change body.
type updateStatusRequest struct {
	Status         string `json:"status"`
	RecipientEmail string `json:"recipient_email,omitempty"`
}

// UpdateStatus handles POST /admin/appointments/{appointmentID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, `{"error": "invalid appointment id"}`, http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), id, Status(req.Status), req.RecipientEmail)
	if err != nil {
		h.writeError(w, err, "update status", id.String())
		return
	}

	writeJSON(w, http.StatusOK, bookResponse{
		AppointmentID: appt.ID.String(),
		Token:         appt.Token(),
		Date:          appt.Date,
		SessionIndex:  appt.SessionIndex,
		SlotIndex:     appt.SlotIndex,
		Time:          appt.TimeLabel,
		Status:        string(appt.Status),
	})
}

// declareBreakRequest is the staff break-declaration body.
type declareBreakRequest struct {
	DoctorID     string `json:"doctor_id"`
	Date         string `json:"date"`
	SessionIndex int    `json:"session_index"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

// DeclareBreak handles POST /admin/breaks.
func (h *Handler) DeclareBreak(w http.ResponseWriter, r *http.Request) {
	var req declareBreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if req.DoctorID == "" || req.Date == "" || req.Start == "" || req.End == "" {
		http.Error(w, `{"error": "doctor_id, date, start and end are required"}`, http.StatusBadRequest)
		return
	}

	adj, err := h.svc.DeclareBreak(r.Context(), DeclareBreakRequest{
		DoctorID:     req.DoctorID,
		Date:         req.Date,
		SessionIndex: req.SessionIndex,
		Start:        req.Start,
		End:          req.End,
	})
	if err != nil {
		h.writeError(w, err, "declare break", req.DoctorID)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"total_break_minutes":     adj.TotalBreakMinutes,
		"actual_extension_needed": adj.ActualExtensionNeeded,
		"new_session_end":         adj.NewSessionEnd,
	})
}

// Schedule handles GET /doctors/{doctorID}/schedule?date=YYYY-MM-DD.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date := r.URL.Query().Get("date")
	if doctorID == "" || date == "" {
		http.Error(w, `{"error": "doctor id and date are required"}`, http.StatusBadRequest)
		return
	}

	views, err := h.svc.DaySchedule(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, err, "day schedule", doctorID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "date": date, "slots": views})
}

// Delay handles GET /doctors/{doctorID}/delay?date=YYYY-MM-DD&session=N.
func (h *Handler) Delay(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date := r.URL.Query().Get("date")
	if doctorID == "" || date == "" {
		http.Error(w, `{"error": "doctor id and date are required"}`, http.StatusBadRequest)
		return
	}
	sessionIndex := 0
	if s := r.URL.Query().Get("session"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, `{"error": "invalid session index"}`, http.StatusBadRequest)
			return
		}
		sessionIndex = n
	}

	delay, err := h.svc.EstimateDelay(r.Context(), doctorID, date, sessionIndex)
	if err != nil {
		h.writeError(w, err, "estimate delay", doctorID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctor_id":     doctorID,
		"date":          date,
		"session_index": sessionIndex,
		"delay_minutes": delay,
	})
}

// writeError maps the scheduling error kinds onto HTTP statuses. All of them
// are per-request business outcomes; only unknown errors turn into 500s.
func (h *Handler) writeError(w http.ResponseWriter, err error, op, subject string) {
	switch {
	case errors.Is(err, ErrNoSlotAvailable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no slot available", "code": "no_slot_available"})
	case errors.Is(err, ErrCutoffViolation):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "requested session is inside the advance-booking cutoff", "code": "cutoff_violation"})
	case errors.Is(err, ErrSlotConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "booking conflict, please retry", "code": "slot_conflict"})
	case errors.Is(err, schedule.ErrInvalidSession):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid session or availability data", "code": "invalid_session"})
	case errors.Is(err, schedule.ErrBreakSessionMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "break period does not belong to this session", "code": "break_session_mismatch"})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid status transition", "code": "invalid_transition"})
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, doctor.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "code": "not_found"})
	default:
		h.logger.Error("booking request failed", "op", op, "subject", subject, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
