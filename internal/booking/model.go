// Package booking owns appointment persistence and the token & slot
// allocator: the one read-modify-write in the system that must hold up under
// concurrent requests. Everything here runs inside a serializable Postgres
// transaction; the pure slot math lives in internal/schedule.
package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment. Rows are never deleted,
// only status-transitioned.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSkipped   Status = "skipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusSkipped, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo enumerates the allowed staff-driven status moves. Terminal
// states stay terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled ||
			next == StatusSkipped || next == StatusCompleted || next == StatusNoShow
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled ||
			next == StatusSkipped || next == StatusNoShow
	case StatusSkipped:
		return next == StatusCompleted || next == StatusCancelled || next == StatusNoShow
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return false
	}
	return false
}

// Channel is the booking origin: advance (online) or walk-in.
type Channel string

const (
	ChannelAdvance Channel = "advance"
	ChannelWalkIn  Channel = "walkin"
)

// Prefix returns the letter shown in front of the token number.
func (c Channel) Prefix() string {
	if c == ChannelWalkIn {
		return "W"
	}
	return "A"
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelAdvance || c == ChannelWalkIn
}

// Appointment is one persisted booking. The (doctor, date, session, slot)
// tuple of non-cancelled rows is unique; tokens are per-day, per-channel
// sequences that never get reused, not even after cancellation.
type Appointment struct {
	ID               uuid.UUID
	DoctorID         string
	PatientID        string
	Date             string // clinic-local civil date, "2006-01-02"
	SessionIndex     int
	SlotIndex        int
	TimeLabel        string // display form of the slot time, e.g. "9:15 AM"
	Channel          Channel
	TokenSeq         int
	Status           Status
	CancelledByBreak bool
	BreakPlaceholder bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Token renders the patient-facing queue token, e.g. "A12" or "W4".
func (a *Appointment) Token() string {
	return fmt.Sprintf("%s%d", a.Channel.Prefix(), a.TokenSeq)
}
