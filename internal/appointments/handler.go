package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ubva/crm-scheduler/internal/eligibility"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

// ScheduleSource supplies the current eligibility rules and grid window.
type ScheduleSource interface {
	Schedule(ctx context.Context) (eligibility.Rules, eligibility.Window, error)
}

// StaticSchedule serves fixed rules, used when no settings store is wired.
type StaticSchedule struct {
	Rules  eligibility.Rules
	Window eligibility.Window
}

func (s StaticSchedule) Schedule(context.Context) (eligibility.Rules, eligibility.Window, error) {
	return s.Rules, s.Window, nil
}

// LocationFunc resolves the schedule timezone at call time.
type LocationFunc func(ctx context.Context) *time.Location

// FixedLocation always resolves to loc, or UTC when loc is nil.
func FixedLocation(loc *time.Location) LocationFunc {
	loc = locationOrUTC(loc)
	return func(context.Context) *time.Location { return loc }
}

// Handler exposes the availability engine over HTTP.
type Handler struct {
	svc      *Service
	schedule ScheduleSource
	fallback StaticSchedule
	logger   *logging.Logger
	now      func() time.Time
}

// NewHandler creates the scheduling API handler.
func NewHandler(svc *Service, schedule ScheduleSource, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	fallback := StaticSchedule{Rules: eligibility.DefaultRules(), Window: eligibility.DefaultWindow()}
	if schedule == nil {
		schedule = fallback
	}
	return &Handler{svc: svc, schedule: schedule, fallback: fallback, logger: logger, now: time.Now}
}

// WithFallback sets the rules used while the schedule source is failing.
func (h *Handler) WithFallback(rules eligibility.Rules, window eligibility.Window) *Handler {
	h.fallback = StaticSchedule{Rules: rules, Window: window}
	return h
}

// currentSchedule returns the fallback rules when the source errors.
func (h *Handler) currentSchedule(ctx context.Context) (eligibility.Rules, eligibility.Window) {
	rules, window, err := h.schedule.Schedule(ctx)
	if err != nil {
		h.logger.Warn("schedule settings unavailable, using fallback rules", "error", err)
		return h.fallback.Rules, h.fallback.Window
	}
	return rules, window
}

// Routes mounts the scheduling endpoints. The export endpoints sit behind
// exportGate and are left out entirely when it is nil.
func (h *Handler) Routes(exportGate func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	if exportGate != nil {
		r.With(exportGate).Get("/disponiveis", h.Available)
		r.With(exportGate).Get("/disponiveis/whatsapp", h.AvailableWhatsApp)
	}
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/toggle-availability", h.ToggleAvailability)
	r.Post("/book", h.Book)
	r.Get("/grade", h.DayGrid)
	r.Get("/calendario", h.MonthCalendar)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

type createRequest struct {
	DateTime        string      `json:"date_time"`
	Title           *string     `json:"title"`
	DurationMinutes *int        `json:"duration_minutes"`
	CustomerName    *string     `json:"customer_name"`
	Notes           *string     `json:"notes"`
	Status          string      `json:"status"`
	Phone           *string     `json:"phone"`
	MeetLink        *string     `json:"meet_link"`
	ContactID       *FlexibleID `json:"contact_id"`
}

type updateRequest struct {
	DateTime        *string     `json:"date_time"`
	Title           *string     `json:"title"`
	DurationMinutes *int        `json:"duration_minutes"`
	CustomerName    *string     `json:"customer_name"`
	Notes           *string     `json:"notes"`
	Status          *string     `json:"status"`
	Phone           *string     `json:"phone"`
	MeetLink        *string     `json:"meet_link"`
	ContactID       *FlexibleID `json:"contact_id"`
}

type toggleRequest struct {
	DateTime  string      `json:"date_time"`
	ContactID *FlexibleID `json:"contactId"`
}

type bookRequest struct {
	DateTime        string      `json:"date_time"`
	Title           *string     `json:"title"`
	DurationMinutes *int        `json:"duration_minutes"`
	CustomerName    *string     `json:"customer_name"`
	Notes           *string     `json:"notes"`
	Phone           *string     `json:"phone"`
	MeetLink        *string     `json:"meet_link"`
	ContactID       *FlexibleID `json:"contactId"`
}

// List handles GET /api/agendamento?startDate=&endDate=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rules, _ := h.currentSchedule(r.Context())
	start, end, err := ParseRange(r, rules.Location)
	if err != nil {
		h.fail(w, err, "Failed to fetch appointments")
		return
	}
	rows, err := h.svc.List(r.Context(), start, end)
	if err != nil {
		h.fail(w, err, "Failed to fetch appointments")
		return
	}
	if rows == nil {
		rows = []Appointment{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Create handles POST /api/agendamento
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rules, _ := h.currentSchedule(r.Context())
	at, err := parseRequiredInstant(req.DateTime, rules.Location)
	if err != nil {
		h.fail(w, err, "Failed to create appointment")
		return
	}
	in := CreateInput{
		DateTime:     at,
		Title:        req.Title,
		CustomerName: req.CustomerName,
		Notes:        req.Notes,
		Phone:        req.Phone,
		MeetLink:     req.MeetLink,
		ContactID:    req.ContactID.Ptr(),
	}
	if req.DurationMinutes != nil {
		in.DurationMinutes = *req.DurationMinutes
	}
	if strings.TrimSpace(req.Status) != "" {
		if in.Status, err = ParseStatus(req.Status); err != nil {
			h.fail(w, err, "Failed to create appointment")
			return
		}
	}
	row, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.fail(w, err, "Failed to create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// Update handles PUT /api/agendamento/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rules, _ := h.currentSchedule(r.Context())
	patch := Patch{
		Title:           req.Title,
		DurationMinutes: req.DurationMinutes,
		CustomerName:    req.CustomerName,
		Notes:           req.Notes,
		Phone:           req.Phone,
		MeetLink:        req.MeetLink,
		ContactID:       req.ContactID.Ptr(),
	}
	if req.DateTime != nil {
		at, err := parseRequiredInstant(*req.DateTime, rules.Location)
		if err != nil {
			h.fail(w, err, "Failed to update appointment")
			return
		}
		patch.DateTime = &at
	}
	if req.Status != nil {
		status, err := ParseStatus(*req.Status)
		if err != nil {
			h.fail(w, err, "Failed to update appointment")
			return
		}
		patch.Status = &status
	}
	row, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, err, "Failed to update appointment")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ToggleAvailability handles POST /api/agendamento/toggle-availability
func (h *Handler) ToggleAvailability(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rules, _ := h.currentSchedule(r.Context())
	at, err := parseRequiredInstant(req.DateTime, rules.Location)
	if err != nil {
		h.fail(w, err, "Failed to toggle appointment availability")
		return
	}
	row, err := h.svc.Toggle(r.Context(), at, req.ContactID.Ptr())
	if err != nil {
		h.fail(w, err, "Failed to toggle appointment availability")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Book handles POST /api/agendamento/book
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rules, _ := h.currentSchedule(r.Context())
	at, err := parseRequiredInstant(req.DateTime, rules.Location)
	if err != nil {
		h.fail(w, err, "Failed to book appointment")
		return
	}
	row, err := h.svc.Book(r.Context(), BookInput{
		DateTime:        at,
		DurationMinutes: req.DurationMinutes,
		Title:           req.Title,
		CustomerName:    req.CustomerName,
		Notes:           req.Notes,
		Phone:           req.Phone,
		MeetLink:        req.MeetLink,
		ContactID:       req.ContactID.Ptr(),
	})
	if err != nil {
		h.fail(w, err, "Failed to book appointment")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Delete handles DELETE /api/agendamento/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "Failed to delete appointment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DayGrid handles GET /api/agendamento/grade?date=YYYY-MM-DD
func (h *Handler) DayGrid(w http.ResponseWriter, r *http.Request) {
	rules, window := h.currentSchedule(r.Context())
	loc := locationOrUTC(rules.Location)
	now := h.now()
	day := now.In(loc)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	rows, err := h.svc.List(r.Context(), &start, &end)
	if err != nil {
		h.fail(w, err, "Failed to build schedule grid")
		return
	}
	writeJSON(w, http.StatusOK, eligibility.BuildDayGrid(start, Entries(rows), rules, window, now))
}

// MonthCalendar handles GET /api/agendamento/calendario?month=YYYY-MM
func (h *Handler) MonthCalendar(w http.ResponseWriter, r *http.Request) {
	rules, _ := h.currentSchedule(r.Context())
	loc := locationOrUTC(rules.Location)
	month := h.now().In(loc)
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01", raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		month = parsed
	}
	start, next := eligibility.MonthBounds(month, loc)
	end := next.Add(-time.Nanosecond)
	rows, err := h.svc.List(r.Context(), &start, &end)
	if err != nil {
		h.fail(w, err, "Failed to build calendar")
		return
	}
	writeJSON(w, http.StatusOK, eligibility.BuildMonthSummary(start, Entries(rows), rules))
}

// fail maps domain errors onto status codes; anything unknown is a logged 500.
func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrSlotBooked):
		writeError(w, http.StatusConflict, "Time slot already booked")
	case errors.Is(err, ErrSlotExists):
		writeError(w, http.StatusConflict, "Time slot already exists")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Appointment not found")
	default:
		h.logger.Error(strings.ToLower(fallback), "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// FlexibleID accepts a JSON string or number, as contact ids arrive both ways.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("contact id must be a string or number")
	}
	*f = FlexibleID(n.String())
	return nil
}

// Ptr returns nil for a missing or blank id.
func (f *FlexibleID) Ptr() *string {
	if f == nil {
		return nil
	}
	return optional(string(*f))
}

var instantLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseInstant reads RFC 3339 timestamps, or naive local times interpreted in loc.
func ParseInstant(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	loc = locationOrUTC(loc)
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func parseRequiredInstant(raw string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, requiredField("date_time")
	}
	t, err := ParseInstant(raw, loc)
	if err != nil {
		return time.Time{}, invalidField("date_time", "must be an ISO-8601 timestamp")
	}
	return t, nil
}

// ParseRange reads startDate/endDate. A bare date on endDate covers the whole day.
func ParseRange(r *http.Request, loc *time.Location) (*time.Time, *time.Time, error) {
	loc = locationOrUTC(loc)
	parse := func(field string, endOfDay bool) (*time.Time, error) {
		raw := strings.TrimSpace(r.URL.Query().Get(field))
		if raw == "" {
			return nil, nil
		}
		if d, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
			if endOfDay {
				d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
			}
			return &d, nil
		}
		t, err := ParseInstant(raw, loc)
		if err != nil {
			return nil, invalidField(field, "must be an ISO-8601 date or timestamp")
		}
		return &t, nil
	}
	start, err := parse("startDate", false)
	if err != nil {
		return nil, nil, err
	}
	end, err := parse("endDate", true)
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
