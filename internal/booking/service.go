package booking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opdesk/clinic-queue/internal/clinictime"
	"github.com/opdesk/clinic-queue/internal/notify"
	"github.com/opdesk/clinic-queue/internal/observability/metrics"
	"github.com/opdesk/clinic-queue/internal/queueboard"
	"github.com/opdesk/clinic-queue/internal/schedule"
	"github.com/opdesk/clinic-queue/pkg/logging"
)

var bookingTracer = otel.Tracer("clinicqueue.internal.booking")

// Dispatcher delivers patient notifications. Failures are advisory: a
// notification that cannot be sent never unwinds committed scheduling state.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// BoardPublisher pushes queue updates to live displays.
type BoardPublisher interface {
	Publish(evt queueboard.Event)
}

// Service is the request-facing surface over the allocator: bookings, staff
// status changes, break declarations, and the read-side queries.
type Service struct {
	alloc   *Allocator
	repo    *Repository
	doctors DoctorDirectory
	cal     *schedule.Calendar
	clock   *clinictime.Clock
	notify  Dispatcher
	board   BoardPublisher
	metrics *metrics.SchedulerMetrics
	logger  *logging.Logger
	cfg     AllocatorConfig
}

// NewService wires the booking service. notify and board may be nil.
func NewService(alloc *Allocator, repo *Repository, doctors DoctorDirectory, clock *clinictime.Clock, dispatcher Dispatcher, board BoardPublisher, m *metrics.SchedulerMetrics, logger *logging.Logger) *Service {
	if alloc == nil {
		panic("booking: allocator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		alloc:   alloc,
		repo:    repo,
		doctors: doctors,
		cal:     schedule.NewCalendar(clock),
		clock:   clock,
		notify:  dispatcher,
		board:   board,
		metrics: m,
		logger:  logger,
		cfg:     alloc.cfg,
	}
}

// BookingRequest is one patient booking on either channel.
type BookingRequest struct {
	DoctorID         string
	PatientID        string
	PatientName      string
	PatientEmail     string
	Date             string
	PreferredSession *int
}

// Book allocates a token and slot on the given channel and fans out the
// after-effects: a confirmation notification and a queue board update.
func (s *Service) Book(ctx context.Context, channel Channel, req BookingRequest) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicqueue.doctor_id", req.DoctorID),
		attribute.String("clinicqueue.date", req.Date),
		attribute.String("clinicqueue.channel", string(channel)),
	)

	started := time.Now()
	appt, err := s.alloc.Allocate(ctx, AllocationRequest{
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		Date:             req.Date,
		Channel:          channel,
		PreferredSession: req.PreferredSession,
	})
	s.metrics.ObserveAllocationLatency(string(channel), time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment booked",
		"doctor_id", appt.DoctorID, "date", appt.Date, "token", appt.Token(),
		"session", appt.SessionIndex, "slot", appt.SlotIndex, "channel", channel)

	s.afterCommit(ctx, appt, notify.Notification{
		AppointmentID:  appt.ID.String(),
		RecipientEmail: req.PatientEmail,
		RecipientName:  req.PatientName,
		TemplateKey:    notify.TemplateBookingConfirmed,
		Fields: map[string]string{
			"token":  appt.Token(),
			"doctor": appt.DoctorID,
			"date":   appt.Date,
			"time":   appt.TimeLabel,
		},
	})
	return appt, nil
}

// UpdateStatus applies a staff action (complete, cancel, skip, no-show) with
// exhaustive transition checking.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next Status, recipientEmail string) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.update_status")
	defer span.End()

	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	appt, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, next)
	}

	if err := s.repo.UpdateStatus(ctx, nil, id, appt.Status, next, false); err != nil {
		span.RecordError(err)
		return nil, err
	}
	appt.Status = next

	s.logger.Info("appointment status changed",
		"appointment_id", id, "token", appt.Token(), "status", next)

	s.afterCommit(ctx, appt, notify.Notification{
		AppointmentID:  id.String(),
		RecipientEmail: recipientEmail,
		TemplateKey:    notify.TemplateStatusChanged,
		Fields: map[string]string{
			"token":  appt.Token(),
			"date":   appt.Date,
			"status": string(next),
		},
	})
	return appt, nil
}

// DeclareBreakRequest declares a doctor break inside one session.
type DeclareBreakRequest struct {
	DoctorID     string
	Date         string
	SessionIndex int
	Start        string // clinic time-of-day, e.g. "11:00 AM"
	End          string
}

// DeclareBreak persists the break and recomputes the session's end. The
// extension uses precise mode: it grows the session only by the time booked
// patients are actually displaced. Patients inside the displaced stretch get
// a shift notification.
func (s *Service) DeclareBreak(ctx context.Context, req DeclareBreakRequest) (*schedule.Adjustment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.declare_break")
	defer span.End()

	doc, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("booking: load doctor %s: %w", req.DoctorID, err)
	}
	weekday, err := s.clock.Weekday(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}
	sessions := doc.SessionsOn(weekday)
	if req.SessionIndex < 0 || req.SessionIndex >= len(sessions) {
		return nil, fmt.Errorf("%w: session %d out of range", schedule.ErrInvalidSession, req.SessionIndex)
	}

	startAt, err := s.clock.At(req.Date, req.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}
	endAt, err := s.clock.At(req.Date, req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}
	if !endAt.After(startAt) {
		return nil, fmt.Errorf("%w: break end must be after start", schedule.ErrInvalidSession)
	}

	brk := schedule.BreakPeriod{SessionIndex: req.SessionIndex, StartAt: startAt, EndAt: endAt}

	consult := doc.ConsultMinutes(s.cfg.DefaultConsultMinutes)
	sessionStart, sessionEnd, err := s.cal.SessionWindow(req.Date, sessions[req.SessionIndex], 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}

	appts, err := s.repo.ListForDay(ctx, nil, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}
	existingBreaks, err := s.repo.ListBreaks(ctx, nil, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}

	sessionBreaks := []schedule.BreakPeriod{brk}
	for _, b := range existingBreaks {
		if b.SessionIndex == req.SessionIndex {
			sessionBreaks = append(sessionBreaks, b)
		}
	}
	occupied := make(map[int]bool)
	for _, a := range appts {
		if a.SessionIndex == req.SessionIndex {
			occupied[a.SlotIndex] = true
		}
	}

	adj, err := schedule.AdjustSession(req.SessionIndex, sessionBreaks, sessionStart, sessionEnd, consult, occupied)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.repo.InsertBreak(ctx, nil, req.DoctorID, req.Date, brk); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("break declared",
		"doctor_id", req.DoctorID, "date", req.Date, "session", req.SessionIndex,
		"break_minutes", brk.Minutes(), "extension_minutes", adj.ActualExtensionNeeded)

	// Patients booked at or after the break's start are the ones who shift.
	if s.notify != nil && adj.ActualExtensionNeeded > 0 {
		shift := strconv.Itoa(adj.ActualExtensionNeeded)
		for _, a := range appts {
			if a.SessionIndex != req.SessionIndex || a.Status == StatusCancelled {
				continue
			}
			n := notify.Notification{
				AppointmentID: a.ID.String(),
				TemplateKey:   notify.TemplateBreakDeclared,
				Fields: map[string]string{
					"token":         a.Token(),
					"date":          a.Date,
					"shift_minutes": shift,
				},
			}
			if err := s.notify.Dispatch(ctx, n); err != nil {
				s.logger.Warn("break notification failed", "appointment_id", a.ID, "error", err)
			}
		}
	}

	return &adj, nil
}

// EstimateDelay reports how many minutes the doctor is running behind in the
// given session, read-only.
func (s *Service) EstimateDelay(ctx context.Context, doctorID, date string, sessionIndex int) (int, error) {
	doc, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("booking: load doctor %s: %w", doctorID, err)
	}
	weekday, err := s.clock.Weekday(date)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}
	sessions := doc.SessionsOn(weekday)
	if sessionIndex < 0 || sessionIndex >= len(sessions) {
		return 0, fmt.Errorf("%w: session %d out of range", schedule.ErrInvalidSession, sessionIndex)
	}

	sessionStart, _, err := s.cal.SessionWindow(date, sessions[sessionIndex], 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}

	completed, placeholders, err := s.repo.SessionCompletionCounts(ctx, nil, doctorID, date, sessionIndex)
	if err != nil {
		return 0, err
	}

	allBreaks, err := s.repo.ListBreaks(ctx, nil, doctorID, date)
	if err != nil {
		return 0, err
	}
	var breaks []schedule.BreakPeriod
	for _, b := range allBreaks {
		if b.SessionIndex == sessionIndex {
			breaks = append(breaks, b)
		}
	}

	delay := schedule.EstimateDelay(schedule.PaceInput{
		Status:                 doc.ConsultationStatus,
		SessionStart:           sessionStart,
		CompletedCount:         completed,
		BreakPlaceholderCount:  placeholders,
		CountBreakPlaceholders: s.cfg.CountBreakPlaceholders,
		ConsultMinutes:         doc.ConsultMinutes(s.cfg.DefaultConsultMinutes),
		Breaks:                 breaks,
		Now:                    s.cfg.Now(),
	})
	s.metrics.SetDoctorDelay(doctorID, float64(delay))
	return delay, nil
}

// SlotView is one slot in the day schedule read model.
type SlotView struct {
	SessionIndex int    `json:"session_index"`
	SlotIndex    int    `json:"slot_index"`
	Time         string `json:"time"`
	State        string `json:"state"` // open | booked | walkin_reserved | past
	Token        string `json:"token,omitempty"`
}

// DaySchedule materializes the day for display: every slot with its
// occupancy, walk-in reservation and past/future state as of now.
func (s *Service) DaySchedule(ctx context.Context, doctorID, date string) ([]SlotView, error) {
	doc, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("booking: load doctor %s: %w", doctorID, err)
	}
	weekday, err := s.clock.Weekday(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}
	sessions := doc.SessionsOn(weekday)
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: doctor %s has no sessions on %s", schedule.ErrInvalidSession, doctorID, weekday)
	}

	appts, err := s.repo.ListForDay(ctx, nil, doctorID, date)
	if err != nil {
		return nil, err
	}
	breaks, err := s.repo.ListBreaks(ctx, nil, doctorID, date)
	if err != nil {
		return nil, err
	}
	consult := doc.ConsultMinutes(s.cfg.DefaultConsultMinutes)
	slots, err := s.alloc.daySlots(date, sessions, consult, appts, breaks)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	reserved := schedule.ReservedWalkinSlots(slots, now, s.cfg.WalkinReserveRatio)

	bySlot := make(map[[2]int]*Appointment, len(appts))
	for i := range appts {
		bySlotKey := [2]int{appts[i].SessionIndex, appts[i].SlotIndex}
		bySlot[bySlotKey] = &appts[i]
	}

	views := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		v := SlotView{
			SessionIndex: slot.SessionIndex,
			SlotIndex:    slot.SlotIndex,
			Time:         s.clock.Label(slot.At),
		}
		switch {
		case bySlot[[2]int{slot.SessionIndex, slot.SlotIndex}] != nil:
			a := bySlot[[2]int{slot.SessionIndex, slot.SlotIndex}]
			v.State = "booked"
			v.Token = a.Token()
		case slot.At.Before(now):
			v.State = "past"
		case schedule.IsWalkinReserved(reserved, slot.SessionIndex, slot.SlotIndex):
			v.State = "walkin_reserved"
		default:
			v.State = "open"
		}
		views = append(views, v)
	}
	return views, nil
}

// afterCommit fans out the side effects of a committed change. Neither the
// notification nor the board push can fail the request.
func (s *Service) afterCommit(ctx context.Context, appt *Appointment, n notify.Notification) {
	if s.notify != nil {
		if err := s.notify.Dispatch(ctx, n); err != nil {
			s.logger.Warn("notification failed", "appointment_id", appt.ID, "error", err)
		}
	}
	if s.board != nil {
		s.board.Publish(queueboard.Event{
			DoctorID:     appt.DoctorID,
			Date:         appt.Date,
			Token:        appt.Token(),
			Status:       string(appt.Status),
			SessionIndex: appt.SessionIndex,
			SlotIndex:    appt.SlotIndex,
			TimeLabel:    appt.TimeLabel,
		})
	}
}
