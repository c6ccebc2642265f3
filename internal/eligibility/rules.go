// Package eligibility decides which slots may be offered to end users and
// derives the day grid and month summary the calendar renders.
package eligibility

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Reason explains why a slot is not offerable. The zero value means eligible.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonPast          Reason = "past"
	ReasonLeadTime      Reason = "lead_time"
	ReasonBeforeOpening Reason = "before_opening"
	ReasonAfterClosing  Reason = "after_closing"
	ReasonDayNotAllowed Reason = "day_not_allowed"
)

// Rules is the lead-time, business-hours and weekday policy.
// Hours are compared on the clock hour in Location, so CloseHour 17
// still admits 17:30.
type Rules struct {
	Location        *time.Location
	LeadTime        time.Duration
	OpenHour        int
	CloseHour       int
	FridayCloseHour int
	AllowedDays     []time.Weekday
}

// DefaultLocation is used when a timezone is missing or cannot be loaded.
const DefaultLocation = "America/Sao_Paulo"

// DefaultRules returns Mon–Fri, 09h to 17h (16h on Fridays), one hour lead time.
func DefaultRules() Rules {
	return Rules{
		Location:        LoadLocation(DefaultLocation),
		LeadTime:        time.Hour,
		OpenHour:        9,
		CloseHour:       17,
		FridayCloseHour: 16,
		AllowedDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// IsEligible reports whether slot may be offered at instant now.
func (r Rules) IsEligible(slot, now time.Time) bool {
	return r.Check(slot, now) == ReasonNone
}

// Check returns the first rule slot violates, or ReasonNone.
func (r Rules) Check(slot, now time.Time) Reason {
	loc := r.location()
	local := slot.In(loc)
	localNow := now.In(loc)

	if slot.Before(now) {
		return ReasonPast
	}
	// Lead time only binds slots on the current calendar day.
	if sameDay(local, localNow) && slot.Before(now.Add(r.LeadTime)) {
		return ReasonLeadTime
	}
	if local.Hour() < r.OpenHour {
		return ReasonBeforeOpening
	}
	if local.Hour() > r.closeHourFor(local.Weekday()) {
		return ReasonAfterClosing
	}
	if !r.DayAllowed(local.Weekday()) {
		return ReasonDayNotAllowed
	}
	return ReasonNone
}

func (r Rules) closeHourFor(day time.Weekday) int {
	if day == time.Friday {
		return r.FridayCloseHour
	}
	return r.CloseHour
}

// DayAllowed reports whether day is in the allow-list.
func (r Rules) DayAllowed(day time.Weekday) bool {
	for _, d := range r.AllowedDays {
		if d == day {
			return true
		}
	}
	return false
}

// Filter keeps the instants that pass Check, preserving order.
func (r Rules) Filter(slots []time.Time, now time.Time) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		if r.IsEligible(s, now) {
			out = append(out, s)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekday accepts three-letter English abbreviations ("Mon") or full names.
func ParseWeekday(name string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if len(key) >= 3 {
		if d, ok := weekdayNames[key[:3]]; ok {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("eligibility: unknown weekday %q", name)
}

// WeekdayAbbrev renders a weekday the way settings store it ("Mon").
func WeekdayAbbrev(d time.Weekday) string {
	return d.String()[:3]
}

// ParseWeekdays parses and de-duplicates day names, sorted Sunday first.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]struct{}, len(names))
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
