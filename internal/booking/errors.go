package booking

import "errors"

var (
	// ErrNoSlotAvailable means the candidate list for the requested channel
	// (and session, when one was asked for) is empty. A per-request business
	// outcome, not a failure.
	ErrNoSlotAvailable = errors.New("booking: no slot available")

	// ErrSlotConflict means a concurrent writer committed the same slot or
	// token first. The allocator retries these internally; callers only see
	// it after the retry budget is spent.
	ErrSlotConflict = errors.New("booking: concurrent booking conflict")

	// ErrCutoffViolation means the only slots left in the requested session
	// sit inside the advance-booking cutoff window. Callers should re-offer
	// alternatives; the slot may have been valid when displayed.
	ErrCutoffViolation = errors.New("booking: slot inside advance-booking cutoff window")

	// ErrAppointmentNotFound reports an unknown appointment id.
	ErrAppointmentNotFound = errors.New("booking: appointment not found")

	// ErrInvalidTransition reports a disallowed status change.
	ErrInvalidTransition = errors.New("booking: invalid status transition")
)
