package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubva/crm-scheduler/pkg/logging"
)

func bookingMessage() EmailMessage {
	return EmailMessage{
		To:            "staff@example.com",
		Subject:       "Novo agendamento - Quarta-feira, 17/12 13:00",
		Text:          "Cliente: Ana",
		Category:      CategoryBooking,
		AppointmentID: "2f6c1e0a-1b7d-4a51-9d0e-8c3b5a7e9f10",
	}
}

type fakeSendGrid struct {
	sent   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{From: Sender{Email: "agenda@example.com"}}, nil))
}

func TestSendGridSenderTagsBooking(t *testing.T) {
	client := &fakeSendGrid{status: 202}
	sender := newSendGridSender(client, Sender{Email: "agenda@example.com"}, logging.New("error"))

	require.NoError(t, sender.Send(context.Background(), bookingMessage()))
	require.NotNil(t, client.sent)
	assert.Equal(t, DefaultFromName, client.sent.From.Name)
	assert.Equal(t, "agenda@example.com", client.sent.From.Address)
	assert.Equal(t, []string{CategoryBooking}, client.sent.Categories)
	require.Len(t, client.sent.Personalizations, 1)
	assert.Equal(t, "staff@example.com", client.sent.Personalizations[0].To[0].Address)
	assert.Equal(t, "2f6c1e0a-1b7d-4a51-9d0e-8c3b5a7e9f10", client.sent.Personalizations[0].CustomArgs["appointment_id"])
	require.Len(t, client.sent.Content, 1)
	assert.Equal(t, "text/plain", client.sent.Content[0].Type)
}

func TestSendGridSenderRejectedStatus(t *testing.T) {
	sender := newSendGridSender(&fakeSendGrid{status: 401}, Sender{Email: "agenda@example.com"}, logging.New("error"))
	assert.ErrorContains(t, sender.Send(context.Background(), bookingMessage()), "status 401")

	sender = newSendGridSender(&fakeSendGrid{err: errors.New("dial tcp")}, Sender{Email: "agenda@example.com"}, logging.New("error"))
	assert.ErrorContains(t, sender.Send(context.Background(), bookingMessage()), "dial tcp")
}

func TestSendersRejectIncompleteMessages(t *testing.T) {
	client := &fakeSendGrid{status: 202}
	sender := newSendGridSender(client, Sender{Email: "agenda@example.com"}, logging.New("error"))

	msg := bookingMessage()
	msg.To = " "
	assert.Error(t, sender.Send(context.Background(), msg))
	assert.Nil(t, client.sent)

	msg = bookingMessage()
	msg.Text = ""
	assert.Error(t, NewStubEmailSender(nil).Send(context.Background(), msg))
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), bookingMessage()))

	assert.Error(t, (&SendGridSender{}).Send(context.Background(), bookingMessage()))
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSenderTagsBooking(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{From: Sender{Email: "agenda@example.com"}, ConfigurationSet: "agenda-events"}, nil)
	require.NotNil(t, sender)

	require.NoError(t, sender.Send(context.Background(), bookingMessage()))
	require.NotNil(t, api.input)
	assert.Equal(t, "Agenda <agenda@example.com>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"staff@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "Cliente: Ana", aws.ToString(api.input.Content.Simple.Body.Text.Data))
	assert.Nil(t, api.input.Content.Simple.Body.Html)
	assert.Equal(t, "agenda-events", aws.ToString(api.input.ConfigurationSetName))

	tags := map[string]string{}
	for _, tag := range api.input.EmailTags {
		tags[aws.ToString(tag.Name)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{
		"category":       "agendamento",
		"appointment_id": "2f6c1e0a-1b7d-4a51-9d0e-8c3b5a7e9f10",
	}, tags)
}

func TestSESTagValueSanitises(t *testing.T) {
	assert.Equal(t, "slot_2025-12-17T13_00", tagValue("slot 2025-12-17T13:00"))
}

func TestSESSenderWrapsErrors(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{From: Sender{Email: "agenda@example.com"}}, nil)
	assert.ErrorContains(t, sender.Send(context.Background(), bookingMessage()), "throttled")
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}
