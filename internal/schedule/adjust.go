package schedule

import (
	"fmt"
	"time"
)

// Adjustment is the outcome of replaying a session's breaks against its
// committed bookings.
type Adjustment struct {
	TotalBreakMinutes int
	// ActualExtensionNeeded is how many minutes the session must run past
	// its original end to absorb the breaks. In simple mode this equals
	// TotalBreakMinutes; in precise mode only displaced bookings count.
	ActualExtensionNeeded int
	NewSessionEnd         time.Time
}

// AdjustSession recomputes a session's end time after one or more breaks.
//
// occupied is the set of booked slot indices within this session. Passing a
// nil map selects simple mode: no appointment context is available, so the
// whole break length is assumed displaced (a conservative upper bound). A
// non-nil map, even an empty one, selects precise mode: only breaks that land
// on actually-booked slots extend the session, since a break over an empty
// stretch costs nobody any time.
//
// Every break must carry the same session index as the session being
// adjusted; slot indices are session-local, so a mismatched break would
// produce a nonsense range and is rejected outright.
func AdjustSession(sessionIndex int, breaks []BreakPeriod, sessionStart, originalEnd time.Time, consultMinutes int, occupied map[int]bool) (Adjustment, error) {
	if consultMinutes <= 0 {
		consultMinutes = DefaultConsultMinutes
	}

	total := 0
	for _, b := range breaks {
		if b.SessionIndex != sessionIndex {
			return Adjustment{}, fmt.Errorf("%w: break session %d, adjusting session %d",
				ErrBreakSessionMismatch, b.SessionIndex, sessionIndex)
		}
		total += b.Minutes()
	}

	adj := Adjustment{TotalBreakMinutes: total}

	if occupied == nil {
		adj.ActualExtensionNeeded = total
		adj.NewSessionEnd = originalEnd.Add(time.Duration(total) * time.Minute)
		return adj, nil
	}

	step := time.Duration(consultMinutes) * time.Minute
	displaced := make(map[int]bool)
	for _, b := range breaks {
		first, last := breakSlotRange(b, sessionStart, step)
		for i := first; i <= last; i++ {
			if occupied[i] {
				displaced[i] = true
			}
		}
	}

	adj.ActualExtensionNeeded = len(displaced) * consultMinutes
	adj.NewSessionEnd = originalEnd.Add(time.Duration(adj.ActualExtensionNeeded) * time.Minute)
	return adj, nil
}

// breakSlotRange maps a break interval onto the session-local slot indices it
// overlaps. A slot i spans [start+i*step, start+(i+1)*step); the break
// overlaps it when the two intervals intersect.
func breakSlotRange(b BreakPeriod, sessionStart time.Time, step time.Duration) (first, last int) {
	startOffset := b.StartAt.Sub(sessionStart)
	endOffset := b.EndAt.Sub(sessionStart)

	first = int(startOffset / step)
	if startOffset < 0 {
		first = 0
	}

	// Last overlapped slot is the one containing the final instant before
	// EndAt; an EndAt flush on a slot boundary does not reach the next slot.
	last = int((endOffset - time.Nanosecond) / step)
	if endOffset <= 0 {
		return 0, -1
	}
	return first, last
}
