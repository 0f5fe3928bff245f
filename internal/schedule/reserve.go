package schedule

import (
	"math"
	"time"
)

// DefaultWalkinReserveRatio is the share of each session's remaining slots
// held back from advance booking so walk-ins always have a tail to join.
const DefaultWalkinReserveRatio = 0.15

// ReservedWalkinSlots returns, per session, the slot indices held exclusively
// for walk-ins: the chronologically last ceil(F*ratio) of each session's F
// future slots, where future means at or after now. Sessions with no future
// slots reserve nothing. The result is recomputed fresh on every call; it is
// never cached because slots keep moving from future to past.
func ReservedWalkinSlots(slots []Slot, now time.Time, ratio float64) map[int]map[int]bool {
	if ratio <= 0 {
		ratio = DefaultWalkinReserveRatio
	}

	future := make(map[int][]Slot)
	order := make([]int, 0, 4)
	for _, s := range slots {
		if s.At.Before(now) {
			continue
		}
		if _, seen := future[s.SessionIndex]; !seen {
			order = append(order, s.SessionIndex)
		}
		future[s.SessionIndex] = append(future[s.SessionIndex], s)
	}

	reserved := make(map[int]map[int]bool, len(future))
	for _, sessionIndex := range order {
		fs := future[sessionIndex]
		count := int(math.Ceil(float64(len(fs)) * ratio))
		if count == 0 {
			continue
		}
		set := make(map[int]bool, count)
		for _, s := range fs[len(fs)-count:] {
			set[s.SlotIndex] = true
		}
		reserved[sessionIndex] = set
	}
	return reserved
}

// IsWalkinReserved reports whether a slot is inside the walk-in tail.
func IsWalkinReserved(reserved map[int]map[int]bool, sessionIndex, slotIndex int) bool {
	return reserved[sessionIndex][slotIndex]
}
