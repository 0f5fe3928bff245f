package schedule

import (
	"sort"
	"time"
)

// ConsultationStatus says whether the doctor has started seeing patients.
type ConsultationStatus string

const (
	ConsultationIn  ConsultationStatus = "in"
	ConsultationOut ConsultationStatus = "out"
)

// PaceInput carries everything the delay estimate needs. All instants are
// absolute; the caller anchors session boundaries with the clinic clock.
type PaceInput struct {
	Status       ConsultationStatus
	SessionStart time.Time

	// CompletedCount is the number of genuinely finished consultations in the
	// current session. BreakPlaceholderCount is the number of rows marked
	// Completed purely to hold a break's place, with zero real consultation
	// time behind them.
	CompletedCount        int
	BreakPlaceholderCount int

	// CountBreakPlaceholders is an explicit policy switch: when true,
	// placeholder completions count toward expected work, which inflates the
	// expected-minutes figure and can mask real lateness. Default false.
	CountBreakPlaceholders bool

	ConsultMinutes int
	Breaks         []BreakPeriod
	Now            time.Time
}

// EstimateDelay returns how many minutes the doctor is running behind.
//
// Before the doctor checks in, every minute past the effective session start
// is delay. Once in, the delay is elapsed time minus expected consultation
// work minus break time already absorbed, floored at zero. A break abutting
// the very start of the session shifts the effective start instead of being
// counted as absorbed break time, so it is never subtracted twice.
func EstimateDelay(in PaceInput) int {
	consult := in.ConsultMinutes
	if consult <= 0 {
		consult = DefaultConsultMinutes
	}

	start := effectiveStart(in.SessionStart, in.Breaks)
	if !in.Now.After(start) {
		return 0
	}
	elapsed := int(in.Now.Sub(start).Minutes())

	if in.Status != ConsultationIn {
		return elapsed
	}

	completed := in.CompletedCount
	if in.CountBreakPlaceholders {
		completed += in.BreakPlaceholderCount
	}
	expected := completed * consult

	passedBreak := 0
	for _, b := range in.Breaks {
		passedBreak += elapsedBreakMinutes(b, start, in.Now)
	}

	delay := elapsed - expected - passedBreak
	if delay < 0 {
		return 0
	}
	return delay
}

// effectiveStart pushes the session start past any break covering it. Chained
// leading breaks keep pushing.
func effectiveStart(start time.Time, breaks []BreakPeriod) time.Time {
	sorted := make([]BreakPeriod, len(breaks))
	copy(sorted, breaks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartAt.Before(sorted[j].StartAt) })

	for _, b := range sorted {
		if !b.StartAt.After(start) && b.EndAt.After(start) {
			start = b.EndAt
		}
	}
	return start
}

// elapsedBreakMinutes counts the part of a break that has already passed,
// clipped to the window between the effective start and now. An in-progress
// break contributes only its elapsed portion.
func elapsedBreakMinutes(b BreakPeriod, start, now time.Time) int {
	from := b.StartAt
	if from.Before(start) {
		from = start
	}
	to := b.EndAt
	if to.After(now) {
		to = now
	}
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from).Minutes())
}
