// Package reports aggregates appointment counts for the dashboard.
package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ubva/crm-scheduler/internal/appointments"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

// Summary counts appointments per status over a period.
type Summary struct {
	PeriodStart   string           `json:"period_start"`
	PeriodEnd     string           `json:"period_end"`
	Total         int64            `json:"total"`
	ByStatus      map[string]int64 `json:"by_status"`
	BookedMinutes int64            `json:"booked_minutes"`
}

// statsDB is the database/sql surface the repository needs.
type statsDB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// StatsRepository queries appointment aggregates.
type StatsRepository struct {
	db statsDB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	if db == nil {
		panic("reports: sql db required")
	}
	return &StatsRepository{db: db}
}

// Summary aggregates rows with date_time in [start, end]. Nil bounds are open;
// an empty statuses list means every status.
func (r *StatsRepository) Summary(ctx context.Context, start, end *time.Time, statuses []string) (*Summary, error) {
	out := &Summary{ByStatus: map[string]int64{}, PeriodStart: "all-time", PeriodEnd: "now"}

	var (
		where []string
		args  []any
	)
	if start != nil {
		args = append(args, *start)
		where = append(where, fmt.Sprintf("date_time >= $%d", len(args)))
		out.PeriodStart = start.Format(time.RFC3339)
	}
	if end != nil {
		args = append(args, *end)
		where = append(where, fmt.Sprintf("date_time <= $%d", len(args)))
		out.PeriodEnd = end.Format(time.RFC3339)
	}
	if len(statuses) > 0 {
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT status, COUNT(*), COALESCE(SUM(duration_minutes), 0) FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reports: summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status  string
			count   int64
			minutes int64
		)
		if err := rows.Scan(&status, &count, &minutes); err != nil {
			return nil, fmt.Errorf("reports: scan summary: %w", err)
		}
		out.ByStatus[status] = count
		out.Total += count
		if status == "agendado" {
			out.BookedMinutes = minutes
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: rows: %w", err)
	}
	return out, nil
}

// StatsHandler serves GET /api/agendamento/resumo.
type StatsHandler struct {
	repo     *StatsRepository
	location appointments.LocationFunc
	logger   *logging.Logger
}

func NewStatsHandler(repo *StatsRepository, location appointments.LocationFunc, logger *logging.Logger) *StatsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = appointments.FixedLocation(time.UTC)
	}
	return &StatsHandler{repo: repo, location: location, logger: logger}
}

// GetSummary returns the status breakdown.
// Query params:
//   - startDate, endDate: same forms as the appointment list (a bare endDate covers the whole day)
//   - status: comma-separated status filter, stored labels or English aliases
func (h *StatsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := appointments.ParseRange(r, h.location(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var statuses []string
	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, err := appointments.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, string(status))
	}

	summary, err := h.repo.Summary(r.Context(), start, end, statuses)
	if err != nil {
		h.logger.Error("failed to build appointment summary", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		h.logger.Error("failed to encode appointment summary", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
