package appointments

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ubva/crm-scheduler/internal/observability/metrics"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

var schedulingTracer = otel.Tracer("crm.internal.appointments")

// TopicScheduleUpdate is published after every successful mutation.
const TopicScheduleUpdate = "schedule-update"

// Notifier fans a change notification out to connected clients.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
}

// BookingListener is told about every successful booking.
type BookingListener interface {
	OnBooked(ctx context.Context, a Appointment)
}

// CreateInput is a direct insert, used for administrative seeding.
type CreateInput struct {
	DateTime        time.Time
	Status          Status
	DurationMinutes int
	Title           *string
	CustomerName    *string
	Notes           *string
	Phone           *string
	MeetLink        *string
	ContactID       *string
}

// BookInput transitions a slot to booked.
type BookInput struct {
	DateTime        time.Time
	DurationMinutes *int
	Title           *string
	CustomerName    *string
	Notes           *string
	Phone           *string
	MeetLink        *string
	ContactID       *string
}

// Service owns every status transition of an appointment.
type Service struct {
	repo            Repository
	notifier        Notifier
	listeners       []BookingListener
	metrics         *metrics.SchedulingMetrics
	logger          *logging.Logger
	defaultDuration int
}

// NewService constructs the availability engine.
func NewService(repo Repository, notifier Notifier, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:            repo,
		notifier:        notifier,
		logger:          logger,
		defaultDuration: DefaultDurationMinutes,
	}
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithDefaultDuration(minutes int) *Service {
	if minutes > 0 {
		s.defaultDuration = minutes
	}
	return s
}

// AddBookingListener registers l for booking notifications.
func (s *Service) AddBookingListener(l BookingListener) *Service {
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
	return s
}

// List returns every row in [start, end], unfiltered by eligibility.
func (s *Service) List(ctx context.Context, start, end *time.Time) ([]Appointment, error) {
	if start != nil && end != nil && end.Before(*start) {
		return nil, invalidField("endDate", "must not be before startDate")
	}
	return s.repo.List(ctx, start, end)
}

// ListAvailable returns available rows ordered by date_time.
func (s *Service) ListAvailable(ctx context.Context) ([]Appointment, error) {
	return s.repo.ListByStatus(ctx, StatusAvailable)
}

func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Create inserts a row. A booked insert over an existing booking fails with ErrSlotBooked.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "appointments.create")
	defer span.End()
	start := time.Now()

	if in.DateTime.IsZero() {
		return nil, requiredField("date_time")
	}
	if in.DurationMinutes < 0 {
		return nil, invalidField("duration_minutes", "must be positive")
	}
	if in.Status == "" {
		in.Status = StatusAvailable
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = s.defaultDuration
	}
	row, err := s.repo.Insert(ctx, &Appointment{
		DateTime:        normalizeInstant(in.DateTime),
		Status:          in.Status,
		DurationMinutes: in.DurationMinutes,
		Title:           in.Title,
		CustomerName:    in.CustomerName,
		Notes:           in.Notes,
		Phone:           in.Phone,
		MeetLink:        in.MeetLink,
		ContactID:       in.ContactID,
	})
	s.finish(ctx, span, "create", start, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment created", "id", row.ID, "date_time", row.DateTime, "status", row.Status)
	if row.Status == StatusBooked {
		s.notifyBooked(ctx, *row)
	}
	return row, nil
}

// Update patches fields on an existing row.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "appointments.update")
	defer span.End()
	span.SetAttributes(attribute.String("crm.appointment_id", id))
	start := time.Now()

	if id == "" {
		return nil, requiredField("id")
	}
	if patch.DurationMinutes != nil && *patch.DurationMinutes <= 0 {
		return nil, invalidField("duration_minutes", "must be positive")
	}
	if patch.DateTime != nil {
		at := normalizeInstant(*patch.DateTime)
		patch.DateTime = &at
	}
	becameBooked := false
	if patch.Status != nil && *patch.Status == StatusBooked {
		if prior, err := s.repo.GetByID(ctx, id); err == nil && prior.Status != StatusBooked {
			becameBooked = true
		}
	}
	row, err := s.repo.Update(ctx, id, patch)
	s.finish(ctx, span, "update", start, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment updated", "id", row.ID, "status", row.Status)
	if becameBooked && row.Status == StatusBooked {
		s.notifyBooked(ctx, *row)
	}
	return row, nil
}

// Toggle flips a slot between available and unavailable, creating it as
// available on first toggle. Booked slots are refused with ErrSlotBooked.
func (s *Service) Toggle(ctx context.Context, at time.Time, contactID *string) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "appointments.toggle")
	defer span.End()
	start := time.Now()

	if at.IsZero() {
		return nil, requiredField("date_time")
	}
	at = normalizeInstant(at)
	span.SetAttributes(attribute.String("crm.date_time", at.Format(time.RFC3339)))

	row, created, err := s.repo.Toggle(ctx, at, s.defaultDuration)
	s.finish(ctx, span, "toggle", start, err)
	if err != nil {
		if errors.Is(err, ErrSlotBooked) {
			s.logger.Warn("toggle refused on booked slot", "date_time", at)
		}
		return nil, err
	}
	logArgs := []any{"id", row.ID, "date_time", row.DateTime, "status", row.Status, "created", created}
	if contactID != nil {
		logArgs = append(logArgs, "contact_id", *contactID)
	}
	s.logger.Info("appointment toggled", logArgs...)
	return row, nil
}

// Book transitions the slot to booked and attaches customer details.
func (s *Service) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "appointments.book")
	defer span.End()
	start := time.Now()

	if in.DateTime.IsZero() {
		return nil, requiredField("date_time")
	}
	details := BookingDetails{
		Title:           in.Title,
		CustomerName:    in.CustomerName,
		Notes:           in.Notes,
		Phone:           in.Phone,
		MeetLink:        in.MeetLink,
		ContactID:       in.ContactID,
		DurationMinutes: s.defaultDuration,
	}
	if in.DurationMinutes != nil {
		if *in.DurationMinutes <= 0 {
			return nil, invalidField("duration_minutes", "must be positive")
		}
		details.DurationMinutes = *in.DurationMinutes
		details.OverrideDuration = true
	}
	at := normalizeInstant(in.DateTime)
	span.SetAttributes(attribute.String("crm.date_time", at.Format(time.RFC3339)))

	row, err := s.repo.Book(ctx, at, details)
	s.finish(ctx, span, "book", start, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment booked", "id", row.ID, "date_time", row.DateTime)
	s.notifyBooked(ctx, *row)
	return row, nil
}

// Delete removes the row unconditionally.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := schedulingTracer.Start(ctx, "appointments.delete")
	defer span.End()
	span.SetAttributes(attribute.String("crm.appointment_id", id))
	start := time.Now()

	if id == "" {
		return requiredField("id")
	}
	err := s.repo.Delete(ctx, id)
	s.finish(ctx, span, "delete", start, err)
	if err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "id", id)
	return nil
}

// NotifyChanged publishes a schedule update outside of a row mutation, for
// example when the eligibility settings change.
func (s *Service) NotifyChanged(ctx context.Context) {
	s.publish(ctx)
}

// finish records metrics and the span outcome, and publishes on success.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrSlotBooked), errors.Is(err, ErrSlotExists):
		result = "conflict"
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
		span.RecordError(err)
	}
	s.metrics.ObserveMutation(op, result, time.Since(start).Seconds())
	if err == nil {
		s.publish(ctx)
	}
}

// notifyBooked tells listeners that a row became booked.
func (s *Service) notifyBooked(ctx context.Context, a Appointment) {
	for _, l := range s.listeners {
		l.OnBooked(ctx, a)
	}
}

func (s *Service) publish(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, TopicScheduleUpdate); err != nil {
		s.logger.Warn("schedule update publish failed", "error", err)
	}
}

// normalizeInstant drops sub-second noise so the same slot always maps to
// the same key.
func normalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
