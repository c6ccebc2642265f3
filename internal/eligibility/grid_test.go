package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowCandidates(t *testing.T) {
	w := Window{StartMinute: 9 * 60, EndMinute: 11 * 60, Interval: 30 * time.Minute}
	got := w.Candidates(at(2025, 12, 17, 15, 0), brt)
	require.Len(t, got, 4)
	assert.Equal(t, at(2025, 12, 17, 9, 0), got[0])
	assert.Equal(t, at(2025, 12, 17, 10, 30), got[3])

	assert.Nil(t, Window{StartMinute: 600, EndMinute: 500, Interval: time.Hour}.Candidates(time.Now(), brt))
}

func TestBuildDayGrid(t *testing.T) {
	rules := testRules()
	day := at(2025, 12, 17, 0, 0)
	now := at(2025, 12, 16, 12, 0)
	entries := []Entry{
		{ID: "a", At: at(2025, 12, 17, 10, 0), State: StateAvailable},
		{ID: "b", At: at(2025, 12, 17, 11, 0), State: StateBooked},
		{ID: "c", At: at(2025, 12, 17, 12, 0), State: StateUnavailable},
		{ID: "d", At: at(2025, 12, 17, 12, 30), State: StateAvailable},
		{ID: "other-day", At: at(2025, 12, 18, 10, 0), State: StateAvailable},
	}

	grid := BuildDayGrid(day, entries, rules, DefaultWindow(), now)

	assert.Equal(t, "2025-12-17", grid.Date)
	assert.Equal(t, "Wed", grid.Weekday)
	assert.True(t, grid.DayAllowed)
	require.Len(t, grid.Slots, 11)

	byLabel := map[string]GridSlot{}
	for _, s := range grid.Slots {
		byLabel[s.Label] = s
	}
	assert.Equal(t, StateNotOffered, byLabel["08:00"].State)
	assert.Equal(t, ReasonBeforeOpening, byLabel["08:00"].Reason)
	assert.Equal(t, StateUnset, byLabel["09:00"].State)
	assert.True(t, byLabel["09:00"].Clickable)
	assert.Equal(t, StateAvailable, byLabel["10:00"].State)
	assert.Equal(t, "a", byLabel["10:00"].AppointmentID)
	assert.Equal(t, StateBooked, byLabel["11:00"].State)
	assert.False(t, byLabel["11:00"].Clickable)
	assert.Equal(t, StateUnavailable, byLabel["12:00"].State)
	assert.True(t, byLabel["12:00"].Clickable)
	assert.Equal(t, "d", byLabel["12:30"].AppointmentID)

	for i := 1; i < len(grid.Slots); i++ {
		assert.True(t, grid.Slots[i-1].DateTime.Before(grid.Slots[i].DateTime))
	}
}

func TestBookedSlotStaysBookedWhenNotOffered(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 17, 11, 30)
	entries := []Entry{{ID: "b", At: at(2025, 12, 17, 11, 0), State: StateBooked}}

	grid := BuildDayGrid(now, entries, rules, DefaultWindow(), now)
	for _, s := range grid.Slots {
		if s.AppointmentID == "b" {
			assert.Equal(t, StateBooked, s.State)
			assert.False(t, s.Eligible)
			return
		}
	}
	t.Fatal("booked slot missing from grid")
}

func TestBuildMonthSummary(t *testing.T) {
	rules := testRules()
	entries := []Entry{
		{At: at(2025, 12, 17, 10, 0), State: StateAvailable},
		{At: at(2025, 12, 17, 11, 0), State: StateBooked},
		{At: at(2025, 12, 17, 12, 0), State: StateUnavailable},
		{At: at(2026, 1, 2, 10, 0), State: StateAvailable},
	}

	summary := BuildMonthSummary(at(2025, 12, 10, 0, 0), entries, rules)

	assert.Equal(t, "2025-12", summary.Month)
	assert.Equal(t, 1, summary.LeadingBlanks) // Dec 1st 2025 is a Monday
	require.Len(t, summary.Days, 31)
	day := summary.Days[16]
	assert.Equal(t, "2025-12-17", day.Date)
	assert.Equal(t, 1, day.Available)
	assert.Equal(t, 1, day.Booked)
	assert.Equal(t, 1, day.Unavailable)
	assert.False(t, summary.Days[5].DayAllowed) // Saturday
}
