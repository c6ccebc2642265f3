package eligibility

import (
	"sort"
	"time"
)

// SlotState is the display state of one grid cell. It is derived, never stored.
type SlotState string

const (
	StateAvailable   SlotState = "available"
	StateUnavailable SlotState = "unavailable"
	StateBooked      SlotState = "booked"
	// StateUnset means no row exists yet: the slot was never offered.
	StateUnset      SlotState = "unset"
	StateNotOffered SlotState = "not_offered"
)

// Entry is a stored slot as seen by the grid builder.
type Entry struct {
	ID    string
	At    time.Time
	State SlotState
}

// Window bounds the candidate times generated for a day.
type Window struct {
	StartMinute int // minutes after local midnight
	EndMinute   int // exclusive
	Interval    time.Duration
}

// DefaultWindow is 08:00–18:00 every 60 minutes.
func DefaultWindow() Window {
	return Window{StartMinute: 8 * 60, EndMinute: 18 * 60, Interval: time.Hour}
}

// GridSlot is one renderable cell.
type GridSlot struct {
	DateTime      time.Time `json:"date_time"`
	Label         string    `json:"label"`
	State         SlotState `json:"state"`
	Eligible      bool      `json:"eligible"`
	Clickable     bool      `json:"clickable"`
	Reason        Reason    `json:"reason,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
}

// DayGrid is the time grid for a single calendar day.
type DayGrid struct {
	Date       string     `json:"date"`
	Weekday    string     `json:"weekday"`
	DayAllowed bool       `json:"day_allowed"`
	Slots      []GridSlot `json:"slots"`
}

// Candidates lists the instants of day (interpreted in loc) covered by w.
func (w Window) Candidates(day time.Time, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if w.Interval <= 0 || w.EndMinute <= w.StartMinute {
		return nil
	}
	y, m, d := day.In(loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	var out []time.Time
	for t := midnight.Add(time.Duration(w.StartMinute) * time.Minute); t.Before(midnight.Add(time.Duration(w.EndMinute) * time.Minute)); t = t.Add(w.Interval) {
		out = append(out, t)
	}
	return out
}

// BuildDayGrid merges the candidate times of day with stored entries for that
// day and derives each cell's state. Entries off the candidate grid are kept.
func BuildDayGrid(day time.Time, entries []Entry, rules Rules, window Window, now time.Time) DayGrid {
	loc := rules.location()
	local := day.In(loc)

	byInstant := make(map[int64]Entry, len(entries))
	for _, e := range entries {
		if sameDay(e.At.In(loc), local) {
			byInstant[e.At.Unix()] = e
		}
	}

	seen := make(map[int64]struct{})
	var slots []GridSlot
	for _, c := range window.Candidates(local, loc) {
		e, ok := byInstant[c.Unix()]
		slots = append(slots, buildSlot(c, e, ok, rules, now))
		seen[c.Unix()] = struct{}{}
	}
	for key, e := range byInstant {
		if _, ok := seen[key]; ok {
			continue
		}
		slots = append(slots, buildSlot(e.At.In(loc), e, true, rules, now))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].DateTime.Before(slots[j].DateTime) })

	return DayGrid{
		Date:       local.Format(time.DateOnly),
		Weekday:    WeekdayAbbrev(local.Weekday()),
		DayAllowed: rules.DayAllowed(local.Weekday()),
		Slots:      slots,
	}
}

func buildSlot(at time.Time, e Entry, stored bool, rules Rules, now time.Time) GridSlot {
	reason := rules.Check(at, now)
	slot := GridSlot{
		DateTime: at,
		Label:    at.In(rules.location()).Format("15:04"),
		Eligible: reason == ReasonNone,
		Reason:   reason,
	}
	if stored {
		slot.AppointmentID = e.ID
	}
	switch {
	case stored && e.State == StateBooked:
		slot.State = StateBooked
	case !slot.Eligible:
		slot.State = StateNotOffered
	case stored:
		slot.State = e.State
	default:
		slot.State = StateUnset
	}
	slot.Clickable = slot.Eligible && slot.State != StateBooked
	return slot
}

// DaySummary aggregates one calendar day of the month view.
type DaySummary struct {
	Date        string `json:"date"`
	Weekday     string `json:"weekday"`
	DayAllowed  bool   `json:"day_allowed"`
	Available   int    `json:"available"`
	Unavailable int    `json:"unavailable"`
	Booked      int    `json:"booked"`
}

// MonthSummary is the month calendar: LeadingBlanks is the number of empty
// cells before day 1 in a Sunday-first week row.
type MonthSummary struct {
	Month         string       `json:"month"`
	LeadingBlanks int          `json:"leading_blanks"`
	Days          []DaySummary `json:"days"`
}

// MonthBounds returns the first instant of month and of the following month in loc.
func MonthBounds(month time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, _ := month.In(loc).Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// BuildMonthSummary counts entries per day of the month containing month.
func BuildMonthSummary(month time.Time, entries []Entry, rules Rules) MonthSummary {
	loc := rules.location()
	start, end := MonthBounds(month, loc)

	summary := MonthSummary{
		Month:         start.Format("2006-01"),
		LeadingBlanks: int(start.Weekday()),
	}
	index := make(map[string]int)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		index[key] = len(summary.Days)
		summary.Days = append(summary.Days, DaySummary{
			Date:       key,
			Weekday:    WeekdayAbbrev(d.Weekday()),
			DayAllowed: rules.DayAllowed(d.Weekday()),
		})
	}
	for _, e := range entries {
		i, ok := index[e.At.In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		switch e.State {
		case StateAvailable:
			summary.Days[i].Available++
		case StateUnavailable:
			summary.Days[i].Unavailable++
		case StateBooked:
			summary.Days[i].Booked++
		}
	}
	return summary
}
