package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ubva/crm-scheduler/internal/appointments"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

// ModuleAgendamento tags messages produced by the scheduler.
const ModuleAgendamento = "agendamento"

// WhatsAppPayload is the Z-API send-text body.
type WhatsAppPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// BookingConfirmations queues a WhatsApp confirmation for every booking that
// carries a phone number.
type BookingConfirmations struct {
	store    *OutboxStore
	location appointments.LocationFunc
	logger   *logging.Logger
}

// NewBookingConfirmations formats slot times in the zone location resolves
// at booking time.
func NewBookingConfirmations(store *OutboxStore, location appointments.LocationFunc, logger *logging.Logger) *BookingConfirmations {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = appointments.FixedLocation(time.UTC)
	}
	return &BookingConfirmations{
		store:    store,
		location: location,
		logger:   logger,
	}
}

func (c *BookingConfirmations) OnBooked(ctx context.Context, a appointments.Appointment) {
	if a.Phone == nil || strings.TrimSpace(*a.Phone) == "" {
		return
	}
	payload := WhatsAppPayload{
		Phone:   normalizePhone(*a.Phone),
		Message: c.message(a, c.location(ctx)),
	}
	id, err := c.store.Enqueue(ctx, ModuleAgendamento, payload)
	if err != nil {
		c.logger.Error("failed to queue booking confirmation", "error", err, "appointment_id", a.ID)
		return
	}
	c.logger.Info("booking confirmation queued", "message_id", id, "appointment_id", a.ID)
}

func (c *BookingConfirmations) message(a appointments.Appointment, loc *time.Location) string {
	slot := appointments.FormatExportSlot(a, loc)
	greeting := "Olá!"
	if a.CustomerName != nil && strings.TrimSpace(*a.CustomerName) != "" {
		greeting = fmt.Sprintf("Olá, %s!", cases.Title(language.BrazilianPortuguese).String(strings.TrimSpace(*a.CustomerName)))
	}
	msg := fmt.Sprintf("%s Seu horário está confirmado para %s às %s.", greeting, slot.Description, slot.Title)
	if a.MeetLink != nil && *a.MeetLink != "" {
		msg += " Link da reunião: " + *a.MeetLink
	}
	return msg
}

// normalizePhone keeps digits only, the form Z-API expects.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
