package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kolkata(t *testing.T, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2026, 8, 26, hour, min, 0, 0, loc)
}

func TestAdjustSimpleModeUsesFullBreakLength(t *testing.T) {
	start := kolkata(t, 9, 0)
	end := kolkata(t, 13, 0)
	breaks := []BreakPeriod{{SessionIndex: 0, StartAt: kolkata(t, 10, 0), EndAt: kolkata(t, 10, 30)}}

	adj, err := AdjustSession(0, breaks, start, end, 15, nil)
	require.NoError(t, err)

	assert.Equal(t, 30, adj.TotalBreakMinutes)
	assert.Equal(t, 30, adj.ActualExtensionNeeded)
	assert.Equal(t, end.Add(30*time.Minute), adj.NewSessionEnd)
}

func TestAdjustPreciseModeCountsOnlyDisplacedBookings(t *testing.T) {
	start := kolkata(t, 9, 0)
	end := kolkata(t, 13, 0)
	// 10:00-10:30 covers slot indices 4 and 5 at 15-minute duration.
	breaks := []BreakPeriod{{SessionIndex: 0, StartAt: kolkata(t, 10, 0), EndAt: kolkata(t, 10, 30)}}

	// Both displaced slots booked: extension is 2 x 15.
	adj, err := AdjustSession(0, breaks, start, end, 15, map[int]bool{4: true, 5: true})
	require.NoError(t, err)
	assert.Equal(t, 30, adj.ActualExtensionNeeded)
	assert.Equal(t, end.Add(30*time.Minute), adj.NewSessionEnd)

	// One booked: 15. None: 0 and the session end stays put.
	adj, err = AdjustSession(0, breaks, start, end, 15, map[int]bool{4: true})
	require.NoError(t, err)
	assert.Equal(t, 15, adj.ActualExtensionNeeded)

	adj, err = AdjustSession(0, breaks, start, end, 15, map[int]bool{0: true, 9: true})
	require.NoError(t, err)
	assert.Equal(t, 0, adj.ActualExtensionNeeded)
	assert.Equal(t, end, adj.NewSessionEnd)
	assert.Equal(t, 30, adj.TotalBreakMinutes)
}

func TestAdjustBreakEndingOnBoundaryExcludesNextSlot(t *testing.T) {
	start := kolkata(t, 9, 0)
	end := kolkata(t, 13, 0)
	// Break ends exactly at 10:30; slot 6 (10:30) is not displaced.
	breaks := []BreakPeriod{{SessionIndex: 0, StartAt: kolkata(t, 10, 0), EndAt: kolkata(t, 10, 30)}}

	adj, err := AdjustSession(0, breaks, start, end, 15, map[int]bool{6: true})
	require.NoError(t, err)
	assert.Equal(t, 0, adj.ActualExtensionNeeded)
}

func TestAdjustOverlappingBreaksCountSlotsOnce(t *testing.T) {
	start := kolkata(t, 9, 0)
	end := kolkata(t, 13, 0)
	breaks := []BreakPeriod{
		{SessionIndex: 0, StartAt: kolkata(t, 10, 0), EndAt: kolkata(t, 10, 30)},
		{SessionIndex: 0, StartAt: kolkata(t, 10, 15), EndAt: kolkata(t, 10, 45)},
	}

	adj, err := AdjustSession(0, breaks, start, end, 15, map[int]bool{4: true, 5: true, 6: true})
	require.NoError(t, err)
	// Slots 4, 5, 6 displaced once each despite the overlap.
	assert.Equal(t, 45, adj.ActualExtensionNeeded)
}

func TestAdjustRejectsCrossSessionBreak(t *testing.T) {
	start := kolkata(t, 9, 0)
	end := kolkata(t, 13, 0)
	breaks := []BreakPeriod{{SessionIndex: 1, StartAt: kolkata(t, 10, 0), EndAt: kolkata(t, 10, 30)}}

	_, err := AdjustSession(0, breaks, start, end, 15, nil)
	assert.ErrorIs(t, err, ErrBreakSessionMismatch)

	_, err = AdjustSession(0, breaks, start, end, 15, map[int]bool{})
	assert.ErrorIs(t, err, ErrBreakSessionMismatch)
}

func TestAdjustBreakBeforeSessionStartClampsToZero(t *testing.T) {
	start := kolkata(t, 9, 0)
	end := kolkata(t, 13, 0)
	breaks := []BreakPeriod{{SessionIndex: 0, StartAt: kolkata(t, 8, 0), EndAt: kolkata(t, 8, 30)}}

	adj, err := AdjustSession(0, breaks, start, end, 15, map[int]bool{0: true})
	require.NoError(t, err)
	assert.Equal(t, 0, adj.ActualExtensionNeeded)
}
