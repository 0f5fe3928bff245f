package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opdesk/clinic-queue/internal/clinictime"
	"github.com/opdesk/clinic-queue/internal/doctor"
	"github.com/opdesk/clinic-queue/internal/observability/metrics"
	"github.com/opdesk/clinic-queue/internal/schedule"
	"github.com/opdesk/clinic-queue/pkg/logging"
)

// DoctorDirectory is the read side of the doctor profile store.
type DoctorDirectory interface {
	Get(ctx context.Context, doctorID string) (*doctor.Doctor, error)
}

// AllocatorConfig carries the scheduling policy knobs.
type AllocatorConfig struct {
	DefaultConsultMinutes int
	WalkinReserveRatio    float64
	AdvanceCutoff         time.Duration
	MaxRetries            int
	// CountBreakPlaceholders controls whether completed rows that only hold
	// a break's place count as consultation work in the pace estimate.
	CountBreakPlaceholders bool
	// Now is a seam for tests; nil means time.Now.
	Now func() time.Time
}

func (c *AllocatorConfig) normalize() {
	if c.DefaultConsultMinutes <= 0 {
		c.DefaultConsultMinutes = schedule.DefaultConsultMinutes
	}
	if c.WalkinReserveRatio <= 0 {
		c.WalkinReserveRatio = schedule.DefaultWalkinReserveRatio
	}
	if c.AdvanceCutoff <= 0 {
		c.AdvanceCutoff = time.Hour
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// AllocationRequest asks for the next token and slot on one channel.
type AllocationRequest struct {
	DoctorID  string
	PatientID string
	Date      string // clinic-local civil date
	Channel   Channel
	// PreferredSession pins the allocation to one session. Advance requests
	// never spill to another session when it is set.
	PreferredSession *int
}

// Allocator assigns tokens and slots inside serializable transactions, with
// bounded retry when a concurrent writer wins the race.
type Allocator struct {
	repo    *Repository
	doctors DoctorDirectory
	cal     *schedule.Calendar
	clock   *clinictime.Clock
	cfg     AllocatorConfig
	metrics *metrics.SchedulerMetrics
	logger  *logging.Logger
}

// NewAllocator wires the allocator. repo, doctors and clock are required.
func NewAllocator(repo *Repository, doctors DoctorDirectory, clock *clinictime.Clock, cfg AllocatorConfig, m *metrics.SchedulerMetrics, logger *logging.Logger) *Allocator {
	if repo == nil {
		panic("booking: repository required")
	}
	if doctors == nil {
		panic("booking: doctor directory required")
	}
	if clock == nil {
		panic("booking: clinic clock required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg.normalize()
	return &Allocator{
		repo:    repo,
		doctors: doctors,
		cal:     schedule.NewCalendar(clock),
		clock:   clock,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Allocate assigns the next token and a slot for the request. The whole
// read-modify-write runs as one serializable transaction; on a detected
// conflicting concurrent write it starts over from a fresh read, up to the
// configured retry bound, then gives up with ErrSlotConflict.
func (a *Allocator) Allocate(ctx context.Context, req AllocationRequest) (*Appointment, error) {
	if !req.Channel.Valid() {
		return nil, fmt.Errorf("booking: unknown channel %q", req.Channel)
	}

	doc, err := a.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("booking: load doctor %s: %w", req.DoctorID, err)
	}
	weekday, err := a.clock.Weekday(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schedule.ErrInvalidSession, err)
	}
	sessions := doc.SessionsOn(weekday)
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: doctor %s has no sessions on %s", schedule.ErrInvalidSession, req.DoctorID, weekday)
	}
	consult := doc.ConsultMinutes(a.cfg.DefaultConsultMinutes)

	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		// now is re-read per attempt: cutoff and reservation windows keep
		// moving while we retry.
		appt, err := a.tryAllocate(ctx, req, sessions, consult, a.cfg.Now())
		if err == nil {
			a.metrics.ObserveAllocation(string(req.Channel), "ok")
			if attempt > 1 {
				a.logger.Info("allocation succeeded after retry",
					"doctor_id", req.DoctorID, "date", req.Date, "attempt", attempt)
			}
			return appt, nil
		}
		if !errors.Is(err, ErrSlotConflict) {
			a.metrics.ObserveAllocation(string(req.Channel), "rejected")
			return nil, err
		}
		lastErr = err
		a.metrics.ObserveConflictRetry(string(req.Channel))
		a.logger.Warn("allocation conflict, retrying",
			"doctor_id", req.DoctorID, "date", req.Date, "attempt", attempt)
	}

	a.metrics.ObserveAllocation(string(req.Channel), "conflict")
	return nil, fmt.Errorf("booking: retries exhausted after %d attempts: %w", a.cfg.MaxRetries, lastErr)
}

// tryAllocate is one full read-modify-write attempt.
func (a *Allocator) tryAllocate(ctx context.Context, req AllocationRequest, sessions []schedule.Session, consult int, now time.Time) (*Appointment, error) {
	var out *Appointment

	err := a.repo.InSerializableTx(ctx, func(q Querier) error {
		existing, err := a.repo.ListForDay(ctx, q, req.DoctorID, req.Date)
		if err != nil {
			return err
		}
		breaks, err := a.repo.ListBreaks(ctx, q, req.DoctorID, req.Date)
		if err != nil {
			return err
		}

		slots, err := a.daySlots(req.Date, sessions, consult, existing, breaks)
		if err != nil {
			return err
		}

		// Every row pins its slot: cancelled and no-show slots are not
		// re-bookable, so the occupied set is simply all rows.
		occupied := make(map[[2]int]bool, len(existing))
		for _, e := range existing {
			occupied[[2]int{e.SessionIndex, e.SlotIndex}] = true
		}

		var chosen *schedule.Slot
		switch req.Channel {
		case ChannelAdvance:
			chosen, err = a.pickAdvanceSlot(slots, occupied, req.PreferredSession, now)
		case ChannelWalkIn:
			chosen, err = a.pickWalkinSlot(slots, existing, req.PreferredSession, now)
		}
		if err != nil {
			return err
		}

		maxSeq, err := a.repo.MaxTokenSeq(ctx, q, req.DoctorID, req.Date, req.Channel)
		if err != nil {
			return err
		}

		appt := &Appointment{
			DoctorID:     req.DoctorID,
			PatientID:    req.PatientID,
			Date:         req.Date,
			SessionIndex: chosen.SessionIndex,
			SlotIndex:    chosen.SlotIndex,
			TimeLabel:    a.clock.Label(chosen.At),
			Channel:      req.Channel,
			TokenSeq:     maxSeq + 1,
			Status:       StatusConfirmed,
		}
		if err := a.repo.Insert(ctx, q, appt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// daySlots materializes the day with break extensions applied per session.
// Extensions are computed in precise mode from the same appointment snapshot
// the allocation reads, so the view is transactionally consistent.
func (a *Allocator) daySlots(date string, sessions []schedule.Session, consult int, existing []Appointment, breaks []schedule.BreakPeriod) ([]schedule.Slot, error) {
	perSession := make(map[int][]schedule.BreakPeriod)
	for _, b := range breaks {
		perSession[b.SessionIndex] = append(perSession[b.SessionIndex], b)
	}

	extensions := make(map[int]int)
	for sessionIndex, bs := range perSession {
		if sessionIndex < 0 || sessionIndex >= len(sessions) {
			return nil, fmt.Errorf("%w: break references session %d", schedule.ErrBreakSessionMismatch, sessionIndex)
		}
		start, end, err := a.cal.SessionWindow(date, sessions[sessionIndex], 0)
		if err != nil {
			continue // unparseable session contributes no slots anyway
		}
		occupied := make(map[int]bool)
		for _, e := range existing {
			if e.SessionIndex == sessionIndex {
				occupied[e.SlotIndex] = true
			}
		}
		adj, err := schedule.AdjustSession(sessionIndex, bs, start, end, consult, occupied)
		if err != nil {
			return nil, err
		}
		extensions[sessionIndex] = adj.ActualExtensionNeeded
	}

	return a.cal.DaySlots(date, sessions, consult, extensions)
}

// pickAdvanceSlot chooses the earliest slot that is in the future beyond the
// cutoff, unoccupied, and not inside the walk-in tail. A preferred session is
// a hard constraint: no silent spill into another session.
func (a *Allocator) pickAdvanceSlot(slots []schedule.Slot, occupied map[[2]int]bool, preferred *int, now time.Time) (*schedule.Slot, error) {
	reserved := schedule.ReservedWalkinSlots(slots, now, a.cfg.WalkinReserveRatio)
	cutoff := now.Add(a.cfg.AdvanceCutoff)

	cutoffBlocked := false
	for i := range slots {
		s := slots[i]
		if preferred != nil && s.SessionIndex != *preferred {
			continue
		}
		if occupied[[2]int{s.SessionIndex, s.SlotIndex}] {
			continue
		}
		if schedule.IsWalkinReserved(reserved, s.SessionIndex, s.SlotIndex) {
			continue
		}
		// Strictly after the cutoff instant: a slot exactly at now+cutoff is
		// still rejected.
		if !s.At.After(cutoff) {
			if !s.At.Before(now) {
				cutoffBlocked = true
			}
			continue
		}
		return &s, nil
	}
	if cutoffBlocked {
		return nil, ErrCutoffViolation
	}
	return nil, ErrNoSlotAvailable
}

// pickWalkinSlot appends to the tail of the live queue: the position right
// after the latest-indexed appointment in the target session, or the first
// future slot when the session has no appointments yet. Walk-ins model a
// physical line, so they never fill earlier gaps.
func (a *Allocator) pickWalkinSlot(slots []schedule.Slot, existing []Appointment, preferred *int, now time.Time) (*schedule.Slot, error) {
	targetSession, err := a.walkinTargetSession(slots, preferred, now)
	if err != nil {
		return nil, err
	}

	lastIdx := -1
	for _, e := range existing {
		if e.SessionIndex == targetSession && e.SlotIndex > lastIdx {
			lastIdx = e.SlotIndex
		}
	}

	if lastIdx >= 0 {
		want := lastIdx + 1
		for i := range slots {
			if slots[i].SessionIndex == targetSession && slots[i].SlotIndex == want {
				return &slots[i], nil
			}
		}
		return nil, ErrNoSlotAvailable
	}

	for i := range slots {
		s := slots[i]
		if s.SessionIndex == targetSession && !s.At.Before(now) {
			return &slots[i], nil
		}
	}
	return nil, ErrNoSlotAvailable
}

// walkinTargetSession resolves which session a walk-in joins: the preferred
// one when given, otherwise the session owning the first future slot.
func (a *Allocator) walkinTargetSession(slots []schedule.Slot, preferred *int, now time.Time) (int, error) {
	if preferred != nil {
		return *preferred, nil
	}
	for _, s := range slots {
		if !s.At.Before(now) {
			return s.SessionIndex, nil
		}
	}
	return 0, ErrNoSlotAvailable
}
