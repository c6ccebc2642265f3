package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var brt = time.FixedZone("BRT", -3*60*60)

func testRules() Rules {
	r := DefaultRules()
	r.Location = brt
	return r
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, brt)
}

func TestLeadTimeBoundary(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 17, 10, 0) // Wednesday

	assert.True(t, rules.IsEligible(now.Add(60*time.Minute), now))
	assert.False(t, rules.IsEligible(now.Add(59*time.Minute), now))
	assert.Equal(t, ReasonLeadTime, rules.Check(now.Add(59*time.Minute), now))
}

func TestLeadTimeOnlyBindsToday(t *testing.T) {
	rules := testRules()
	rules.LeadTime = 12 * time.Hour
	now := at(2025, 12, 16, 22, 0) // Tuesday night

	assert.True(t, rules.IsEligible(at(2025, 12, 17, 9, 0), now))
}

func TestOpeningHour(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 15, 8, 0)

	assert.Equal(t, ReasonBeforeOpening, rules.Check(at(2025, 12, 17, 8, 59), now))
	assert.True(t, rules.IsEligible(at(2025, 12, 17, 9, 0), now))
}

func TestFridayCutoff(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 15, 8, 0) // Monday

	friday := at(2025, 12, 19, 17, 0)
	tuesday := at(2025, 12, 16, 17, 0)
	require.Equal(t, time.Friday, friday.Weekday())
	require.Equal(t, time.Tuesday, tuesday.Weekday())

	assert.Equal(t, ReasonAfterClosing, rules.Check(friday, now))
	assert.True(t, rules.IsEligible(tuesday, now))
	assert.True(t, rules.IsEligible(at(2025, 12, 19, 16, 30), now))
	assert.Equal(t, ReasonAfterClosing, rules.Check(at(2025, 12, 16, 18, 0), now))
}

func TestAllowedDays(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 15, 8, 0)
	saturday := at(2025, 12, 20, 10, 0)

	assert.Equal(t, ReasonDayNotAllowed, rules.Check(saturday, now))

	rules.AllowedDays = append(rules.AllowedDays, time.Saturday)
	assert.True(t, rules.IsEligible(saturday, now))
}

func TestPastSlots(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 17, 10, 0)
	assert.Equal(t, ReasonPast, rules.Check(at(2025, 12, 16, 10, 0), now))
}

func TestHoursUseRuleLocation(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 15, 8, 0)
	// 12:00 UTC is 09:00 in BRT.
	assert.True(t, rules.IsEligible(time.Date(2025, 12, 17, 12, 0, 0, 0, time.UTC), now))
	assert.False(t, rules.IsEligible(time.Date(2025, 12, 17, 11, 59, 0, 0, time.UTC), now))
}

func TestFilter(t *testing.T) {
	rules := testRules()
	now := at(2025, 12, 17, 10, 0)
	slots := []time.Time{
		at(2025, 12, 17, 10, 30),
		at(2025, 12, 17, 11, 0),
		at(2025, 12, 20, 11, 0),
		at(2025, 12, 18, 9, 0),
	}
	got := rules.Filter(slots, now)
	assert.Equal(t, []time.Time{slots[1], slots[3]}, got)
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays([]string{"Fri", "mon", "Monday", "Sun"})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Monday, time.Friday}, days)

	_, err = ParseWeekdays([]string{"Funday"})
	assert.Error(t, err)
	assert.Equal(t, "Wed", WeekdayAbbrev(time.Wednesday))
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}
