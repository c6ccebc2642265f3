// Package notify emails staff about scheduling events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ubva/crm-scheduler/pkg/logging"
)

const (
	// DefaultFromName is the sender display name when none is configured.
	DefaultFromName = "Agenda"

	// CategoryBooking tags booking emails at the provider.
	CategoryBooking = "agendamento"

	appointmentIDTag = "appointment_id"
)

// EmailSender sends one email. SendGrid, SES and the stub implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one outgoing email. Category and AppointmentID travel to the
// provider as metadata so a bounce can be traced back to its slot.
type EmailMessage struct {
	To            string
	ToName        string
	Subject       string
	Text          string
	HTML          string
	Category      string
	AppointmentID string
}

func (m EmailMessage) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("notify: recipient required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("notify: subject required")
	}
	if m.Text == "" && m.HTML == "" {
		return errors.New("notify: empty body")
	}
	return nil
}

// Sender is the From identity shared by every provider.
type Sender struct {
	Email string
	Name  string
}

func (s Sender) displayName() string {
	if strings.TrimSpace(s.Name) == "" {
		return DefaultFromName
	}
	return s.Name
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds the SendGrid credentials and sender.
type SendGridConfig struct {
	APIKey string
	From   Sender
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client sendGridClient
	from   Sender
	logger *logging.Logger
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg.From, logger)
}

func newSendGridSender(client sendGridClient, from Sender, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{client: client, from: from, logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}
	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "appointment_id", msg.AppointmentID)
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "appointment_id", msg.AppointmentID)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	s.logger.Info("booking email sent", "provider", "sendgrid", "appointment_id", msg.AppointmentID, "status", resp.StatusCode)
	return nil
}

// build maps msg onto a v3 mail. The appointment id rides along as a custom
// arg, which SendGrid echoes back on event webhooks.
func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.from.displayName(), s.from.Email))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	if msg.AppointmentID != "" {
		p.SetCustomArg(appointmentIDTag, msg.AppointmentID)
	}
	m.AddPersonalizations(p)

	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	return m
}

// StubEmailSender logs instead of sending, used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email provider not configured, dropping email",
		"to", msg.To, "subject", msg.Subject, "category", msg.Category, "appointment_id", msg.AppointmentID)
	return nil
}
