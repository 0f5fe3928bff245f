package schedule

import (
	"time"

	"github.com/opdesk/clinic-queue/internal/clinictime"
)

// Calendar materializes a doctor's bookable slots for a civil day from
// session windows and a fixed consultation duration.
type Calendar struct {
	clock *clinictime.Clock
}

// NewCalendar builds a calendar anchored to the clinic clock.
func NewCalendar(clock *clinictime.Clock) *Calendar {
	if clock == nil {
		panic("schedule: clinic clock required")
	}
	return &Calendar{clock: clock}
}

// SessionWindow resolves a session's boundaries to absolute instants on the
// given date. extendMinutes lengthens the end past the stored window, which
// is how committed break extensions widen the bookable day.
func (c *Calendar) SessionWindow(date string, s Session, extendMinutes int) (start, end time.Time, err error) {
	start, err = c.clock.At(date, s.From)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = c.clock.At(date, s.To)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if extendMinutes > 0 {
		end = end.Add(time.Duration(extendMinutes) * time.Minute)
	}
	return start, end, nil
}

// SessionSlots walks one session's [from, to) window in consultMinutes
// increments. A window with to <= from yields no slots; that is a staff
// misconfiguration, not an error. Unparseable boundaries also yield no
// slots so a single bad session never takes down the whole day.
func (c *Calendar) SessionSlots(date string, sessionIndex int, s Session, consultMinutes, extendMinutes int) []Slot {
	if consultMinutes <= 0 {
		consultMinutes = DefaultConsultMinutes
	}
	start, end, err := c.SessionWindow(date, s, extendMinutes)
	if err != nil {
		return nil
	}

	step := time.Duration(consultMinutes) * time.Minute
	var slots []Slot
	for i, at := 0, start; at.Before(end); i, at = i+1, at.Add(step) {
		slots = append(slots, Slot{SessionIndex: sessionIndex, SlotIndex: i, At: at})
	}
	return slots
}

// DaySlots materializes every session of the day in order, keyed by the
// session's position in the availability slice. extensions maps session
// index to extra minutes granted by the break adjuster.
func (c *Calendar) DaySlots(date string, sessions []Session, consultMinutes int, extensions map[int]int) ([]Slot, error) {
	if len(sessions) == 0 {
		return nil, ErrInvalidSession
	}
	var all []Slot
	for i, s := range sessions {
		all = append(all, c.SessionSlots(date, i, s, consultMinutes, extensions[i])...)
	}
	return all, nil
}
