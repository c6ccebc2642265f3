package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubva/crm-scheduler/internal/appointments"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

type captureSender struct {
	sent []EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	c.sent = append(c.sent, msg)
	return c.err
}

func strPtr(s string) *string { return &s }

func TestBookingNotifierSendsSummary(t *testing.T) {
	sender := &captureSender{}
	brt := time.FixedZone("BRT", -3*3600)
	n := NewBookingNotifier(sender, "staff@example.com", appointments.FixedLocation(brt), logging.New("error"))
	require.NotNil(t, n)

	n.OnBooked(context.Background(), appointments.Appointment{
		ID:              "a1",
		DateTime:        time.Date(2025, 12, 19, 12, 30, 0, 0, time.UTC),
		DurationMinutes: 30,
		CustomerName:    strPtr("Ana"),
		Phone:           strPtr("5511999990000"),
		Status:          appointments.StatusBooked,
	})

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "staff@example.com", msg.To)
	assert.Equal(t, "Novo agendamento - Sexta-feira, 19/12 09:30", msg.Subject)
	assert.Contains(t, msg.Text, "Cliente: Ana")
	assert.Contains(t, msg.Text, "Telefone: 5511999990000")
	assert.NotContains(t, msg.Text, "Observações")
	assert.Equal(t, CategoryBooking, msg.Category)
	assert.Equal(t, "a1", msg.AppointmentID)
}

func TestBookingNotifierDisabledWithoutRecipient(t *testing.T) {
	assert.Nil(t, NewBookingNotifier(&captureSender{}, " ", nil, nil))
	assert.Nil(t, NewBookingNotifier(nil, "staff@example.com", nil, nil))

	var n *BookingNotifier
	assert.NotPanics(t, func() { n.OnBooked(context.Background(), appointments.Appointment{}) })
}

func TestBookingNotifierSwallowsSendErrors(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	n := NewBookingNotifier(sender, "staff@example.com", nil, logging.New("error"))
	assert.NotPanics(t, func() {
		n.OnBooked(context.Background(), appointments.Appointment{ID: "a1", Status: appointments.StatusBooked})
	})
	assert.Len(t, sender.sent, 1)
}
