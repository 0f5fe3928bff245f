package clinictime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClockUnknownZone(t *testing.T) {
	_, err := NewClock("Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestAtAcceptsBothClockForms(t *testing.T) {
	clock := MustClock("Asia/Kolkata")

	cases := []struct {
		in   string
		hour int
		min  int
	}{
		{"9:30 AM", 9, 30},
		{"09:30 AM", 9, 30},
		{"9:30 am", 9, 30},
		{"2:15 PM", 14, 15},
		{"14:15", 14, 15},
		{"09:30", 9, 30},
		{" 10:00 ", 10, 0},
	}
	for _, tc := range cases {
		got, err := clock.At("2026-08-26", tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.hour, got.Hour(), "hour for %q", tc.in)
		assert.Equal(t, tc.min, got.Minute(), "minute for %q", tc.in)
		assert.Equal(t, "Asia/Kolkata", got.Location().String())
	}
}

func TestAtRejectsGarbage(t *testing.T) {
	clock := MustClock("Asia/Kolkata")
	_, err := clock.At("2026-08-26", "half past nine")
	require.Error(t, err)

	_, err = clock.At("not-a-date", "9:30 AM")
	require.Error(t, err)
}

func TestTodayIndependentOfServerZone(t *testing.T) {
	clock := MustClock("Asia/Kolkata")

	// 2026-08-26 21:00 UTC is already 2026-08-27 in Kolkata (+05:30).
	instant := time.Date(2026, 8, 26, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-27", clock.Today(instant))
}

func TestWeekday(t *testing.T) {
	clock := MustClock("Asia/Kolkata")
	wd, err := clock.Weekday("2026-08-26")
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, wd)
}

func TestLabelRoundTrip(t *testing.T) {
	clock := MustClock("Asia/Kolkata")
	at, err := clock.At("2026-08-26", "2:15 PM")
	require.NoError(t, err)
	assert.Equal(t, "2:15 PM", clock.Label(at))
}
