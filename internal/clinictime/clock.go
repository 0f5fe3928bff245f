// Package clinictime converts wall-clock instants to and from the clinic's
// fixed local timezone, independent of the server's own timezone. All civil
// dates and time-of-day strings exchanged with storage and callers are
// expressed in this zone.
package clinictime

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the civil date form used as a storage key ("2006-01-02").
const DateLayout = "2006-01-02"

// timeOfDayLayouts are the accepted textual forms for session boundaries,
// tried in order. Staff-entered availability mixes 12-hour and 24-hour forms.
var timeOfDayLayouts = []string{
	"3:04 PM",
	"03:04 PM",
	"15:04",
}

// Clock anchors conversions to one clinic timezone.
type Clock struct {
	loc *time.Location
}

// NewClock loads the named IANA timezone. An unknown name is a deployment
// error, not a per-request one.
func NewClock(tzName string) (*Clock, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("clinictime: load timezone %q: %w", tzName, err)
	}
	return &Clock{loc: loc}, nil
}

// MustClock is for tests and fixed deployments where the zone is known good.
func MustClock(tzName string) *Clock {
	c, err := NewClock(tzName)
	if err != nil {
		panic(err)
	}
	return c
}

// Location exposes the clinic zone for callers that format directly.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Today returns the clinic-local civil date string for the given instant.
func (c *Clock) Today(now time.Time) string {
	return now.In(c.loc).Format(DateLayout)
}

// Weekday returns the clinic-local day of week for a civil date string.
func (c *Clock) Weekday(date string) (time.Weekday, error) {
	d, err := c.ParseDate(date)
	if err != nil {
		return time.Sunday, err
	}
	return d.Weekday(), nil
}

// ParseDate interprets a civil date string as clinic-local midnight.
func (c *Clock) ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("clinictime: parse date %q: %w", date, err)
	}
	return d, nil
}

// At anchors a time-of-day string onto a civil date, producing an absolute
// instant in the clinic zone. Both "9:30 AM" and "09:30" forms are accepted.
func (c *Clock) At(date, timeOfDay string) (time.Time, error) {
	day, err := c.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	tod := strings.ToUpper(strings.TrimSpace(timeOfDay))
	for _, layout := range timeOfDayLayouts {
		parsed, err := time.Parse(layout, tod)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0, c.loc), nil
	}
	return time.Time{}, fmt.Errorf("clinictime: unrecognized time of day %q", timeOfDay)
}

// Label renders an instant as the clinic-facing "3:04 PM" display string.
func (c *Clock) Label(t time.Time) string {
	return t.In(c.loc).Format("3:04 PM")
}
