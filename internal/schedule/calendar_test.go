package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdesk/clinic-queue/internal/clinictime"
)

const testDate = "2026-08-26"

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	return NewCalendar(clinictime.MustClock("Asia/Kolkata"))
}

func TestSessionSlotsWalksWindow(t *testing.T) {
	cal := testCalendar(t)

	slots := cal.SessionSlots(testDate, 0, Session{From: "9:00 AM", To: "10:00 AM"}, 15, 0)
	require.Len(t, slots, 4)

	for i, s := range slots {
		assert.Equal(t, 0, s.SessionIndex)
		assert.Equal(t, i, s.SlotIndex)
	}
	assert.Equal(t, 9, slots[0].At.Hour())
	assert.Equal(t, 45, slots[3].At.Minute())
	// End boundary is exclusive: 10:00 AM itself is not a slot.
	assert.True(t, slots[3].At.Add(15*time.Minute).Hour() == 10)
}

func TestSessionSlotsDefaultsConsultMinutes(t *testing.T) {
	cal := testCalendar(t)
	slots := cal.SessionSlots(testDate, 0, Session{From: "09:00", To: "10:00"}, 0, 0)
	assert.Len(t, slots, 4) // falls back to 15-minute slots
}

func TestSessionSlotsInvertedWindowIsEmpty(t *testing.T) {
	cal := testCalendar(t)
	slots := cal.SessionSlots(testDate, 0, Session{From: "5:00 PM", To: "9:00 AM"}, 15, 0)
	assert.Empty(t, slots)
}

func TestSessionSlotsUnparseableWindowIsEmpty(t *testing.T) {
	cal := testCalendar(t)
	slots := cal.SessionSlots(testDate, 0, Session{From: "morningish", To: "10:00 AM"}, 15, 0)
	assert.Empty(t, slots)
}

func TestSessionSlotsExtensionWidensEnd(t *testing.T) {
	cal := testCalendar(t)
	base := cal.SessionSlots(testDate, 1, Session{From: "9:00 AM", To: "10:00 AM"}, 15, 0)
	extended := cal.SessionSlots(testDate, 1, Session{From: "9:00 AM", To: "10:00 AM"}, 15, 30)
	assert.Len(t, extended, len(base)+2)
}

func TestDaySlotsKeepsSessionLocalIndices(t *testing.T) {
	cal := testCalendar(t)
	sessions := []Session{
		{Name: "morning", From: "9:00 AM", To: "10:00 AM"},
		{Name: "evening", From: "5:00 PM", To: "5:30 PM"},
	}
	slots, err := cal.DaySlots(testDate, sessions, 15, nil)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	assert.Equal(t, 0, slots[0].SessionIndex)
	assert.Equal(t, 1, slots[4].SessionIndex)
	// Second session restarts indexing at zero.
	assert.Equal(t, 0, slots[4].SlotIndex)
	assert.Equal(t, 1, slots[5].SlotIndex)
}

func TestDaySlotsNoAvailability(t *testing.T) {
	cal := testCalendar(t)
	_, err := cal.DaySlots(testDate, nil, 15, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestDaySlotsSkipsOneBadSession(t *testing.T) {
	cal := testCalendar(t)
	sessions := []Session{
		{From: "bogus", To: "10:00 AM"},
		{From: "5:00 PM", To: "5:30 PM"},
	}
	slots, err := cal.DaySlots(testDate, sessions, 15, nil)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 1, slots[0].SessionIndex)
}
