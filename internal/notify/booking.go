package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ubva/crm-scheduler/internal/appointments"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

// BookingNotifier emails staff whenever a slot is booked.
type BookingNotifier struct {
	email    EmailSender
	to       string
	location appointments.LocationFunc
	logger   *logging.Logger
}

// NewBookingNotifier returns nil when there is no sender or recipient, so
// callers can skip registering it.
func NewBookingNotifier(email EmailSender, to string, location appointments.LocationFunc, logger *logging.Logger) *BookingNotifier {
	if email == nil || strings.TrimSpace(to) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = appointments.FixedLocation(time.UTC)
	}
	return &BookingNotifier{email: email, to: strings.TrimSpace(to), location: location, logger: logger}
}

func (n *BookingNotifier) OnBooked(ctx context.Context, a appointments.Appointment) {
	if n == nil {
		return
	}
	if err := n.email.Send(ctx, bookingEmail(n.to, a, n.location(ctx))); err != nil {
		n.logger.Error("booking email failed", "error", err, "appointment_id", a.ID)
	}
}

func bookingEmail(to string, a appointments.Appointment, loc *time.Location) EmailMessage {
	slot := appointments.FormatExportSlot(a, loc)
	name := deref(a.CustomerName, "Cliente sem nome")

	var body strings.Builder
	fmt.Fprintf(&body, "Novo agendamento: %s às %s\n", slot.Description, slot.Title)
	fmt.Fprintf(&body, "Cliente: %s\n", name)
	if a.Phone != nil {
		fmt.Fprintf(&body, "Telefone: %s\n", *a.Phone)
	}
	fmt.Fprintf(&body, "Duração: %d min\n", a.DurationMinutes)
	if a.Notes != nil && *a.Notes != "" {
		fmt.Fprintf(&body, "Observações: %s\n", *a.Notes)
	}
	if a.MeetLink != nil && *a.MeetLink != "" {
		fmt.Fprintf(&body, "Link: %s\n", *a.MeetLink)
	}

	return EmailMessage{
		To:            to,
		Subject:       fmt.Sprintf("Novo agendamento - %s %s", slot.Description, slot.Title),
		Text:          body.String(),
		Category:      CategoryBooking,
		AppointmentID: a.ID,
	}
}

func deref(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return *s
}
