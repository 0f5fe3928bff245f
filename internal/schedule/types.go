// Package schedule holds the pure scheduling calculations for a clinic day:
// materializing bookable slots from a doctor's availability, reserving a
// trailing share of each session for walk-ins, recomputing session ends when
// breaks are declared, and estimating how far a doctor is running behind.
// It performs no I/O; persistence and transactions live in internal/booking.
package schedule

import (
	"errors"
	"time"
)

// DefaultConsultMinutes is used when a doctor record leaves the average
// consultation time unset.
const DefaultConsultMinutes = 15

var (
	// ErrInvalidSession reports malformed or missing availability for the
	// requested day.
	ErrInvalidSession = errors.New("schedule: invalid or missing session data")

	// ErrBreakSessionMismatch reports a break period fed against a session it
	// does not belong to. Slot indices are session-local, so cross-session
	// break data would produce meaningless ranges.
	ErrBreakSessionMismatch = errors.New("schedule: break period belongs to a different session")
)

// Session is one named availability window within a doctor's day, e.g.
// "morning" 9:00 AM to 1:00 PM. Its position in the day's slice is its
// stable session index; sessions are appended or edited in place, never
// reordered.
type Session struct {
	Name string `json:"name,omitempty"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Slot is one discrete bookable unit of time, derived rather than persisted.
// SlotIndex is zero-based and local to its session.
type Slot struct {
	SessionIndex int
	SlotIndex    int
	At           time.Time
}

// BreakPeriod is a staff-declared interval during which the doctor is
// unavailable within an otherwise active session. Immutable once created.
type BreakPeriod struct {
	SessionIndex int
	StartAt      time.Time
	EndAt        time.Time
}

// Minutes returns the break length in whole minutes.
func (b BreakPeriod) Minutes() int {
	return int(b.EndAt.Sub(b.StartAt).Minutes())
}
