package appointments

import (
	"strings"
	"time"

	"github.com/ubva/crm-scheduler/internal/eligibility"
)

// Status is the persisted slot status. Labels match the stored values.
type Status string

const (
	StatusAvailable   Status = "disponivel"
	StatusUnavailable Status = "nao_disponivel"
	StatusBooked      Status = "agendado"
)

// DefaultDurationMinutes is used when a caller does not say how long a slot lasts.
const DefaultDurationMinutes = 30

// ParseStatus accepts the stored labels and their English aliases.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "disponivel", "available":
		return StatusAvailable, nil
	case "nao_disponivel", "unavailable", "indisponivel":
		return StatusUnavailable, nil
	case "agendado", "booked":
		return StatusBooked, nil
	}
	return "", invalidField("status", "must be one of disponivel, nao_disponivel, agendado")
}

// SlotState maps the stored status to its calendar display state.
func (s Status) SlotState() eligibility.SlotState {
	switch s {
	case StatusAvailable:
		return eligibility.StateAvailable
	case StatusBooked:
		return eligibility.StateBooked
	default:
		return eligibility.StateUnavailable
	}
}

// Appointment is one time slot record.
type Appointment struct {
	ID              string    `json:"id"`
	Title           *string   `json:"title"`
	DateTime        time.Time `json:"date_time"`
	DurationMinutes int       `json:"duration_minutes"`
	CustomerName    *string   `json:"customer_name"`
	Notes           *string   `json:"notes"`
	Status          Status    `json:"status"`
	Phone           *string   `json:"phone"`
	MeetLink        *string   `json:"meet_link"`
	ContactID       *string   `json:"contact_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Entry converts the row into the grid builder's view.
func (a Appointment) Entry() eligibility.Entry {
	return eligibility.Entry{ID: a.ID, At: a.DateTime, State: a.Status.SlotState()}
}

// Entries converts rows for the grid builder.
func Entries(rows []Appointment) []eligibility.Entry {
	out := make([]eligibility.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Entry())
	}
	return out
}

// Patch carries the fields of a partial update. Nil means unchanged.
type Patch struct {
	Title           *string
	DateTime        *time.Time
	DurationMinutes *int
	CustomerName    *string
	Notes           *string
	Status          *Status
	Phone           *string
	MeetLink        *string
	ContactID       *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.DateTime == nil && p.DurationMinutes == nil &&
		p.CustomerName == nil && p.Notes == nil && p.Status == nil &&
		p.Phone == nil && p.MeetLink == nil && p.ContactID == nil
}

func (p Patch) apply(a *Appointment) {
	if p.Title != nil {
		a.Title = p.Title
	}
	if p.DateTime != nil {
		a.DateTime = *p.DateTime
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	if p.CustomerName != nil {
		a.CustomerName = p.CustomerName
	}
	if p.Notes != nil {
		a.Notes = p.Notes
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Phone != nil {
		a.Phone = p.Phone
	}
	if p.MeetLink != nil {
		a.MeetLink = p.MeetLink
	}
	if p.ContactID != nil {
		a.ContactID = p.ContactID
	}
}

// BookingDetails are the customer fields attached when a slot is booked.
type BookingDetails struct {
	Title        *string
	CustomerName *string
	Notes        *string
	Phone        *string
	MeetLink     *string
	ContactID    *string
	// DurationMinutes is used for a new row, and for an existing row only
	// when OverrideDuration is set.
	DurationMinutes  int
	OverrideDuration bool
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
