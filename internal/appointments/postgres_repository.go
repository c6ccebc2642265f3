package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, title, date_time, duration_minutes, customer_name, notes, status, phone, meet_link, contact_id, created_at`

// toggleRetries bounds the insert/update loop when a row disappears between
// the two statements.
const toggleRetries = 3

// PostgresRepository stores appointments in the appointments table. The
// UNIQUE index on date_time is what makes Toggle and Book race-free.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by a pgx pool or transaction.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, start, end *time.Time) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	if start != nil {
		args = append(args, *start)
		where = append(where, fmt.Sprintf("date_time >= $%d", len(args)))
	}
	if end != nil {
		args = append(args, *end)
		where = append(where, fmt.Sprintf("date_time <= $%d", len(args)))
	}
	query := `SELECT ` + selectColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date_time`
	return r.queryRows(ctx, query, args...)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE status = $1 ORDER BY date_time`
	return r.queryRows(ctx, query, string(status))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select by id: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByDateTime(ctx context.Context, at time.Time) (*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE date_time = $1 ORDER BY created_at LIMIT 1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select by date_time: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (id, title, date_time, duration_minutes, customer_name, notes, status, phone, meet_link, contact_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (date_time) DO NOTHING
		RETURNING ` + selectColumns
	row, err := scanAppointment(r.db.QueryRow(ctx, query,
		id, a.Title, a.DateTime, a.DurationMinutes, a.CustomerName, a.Notes,
		string(a.Status), a.Phone, a.MeetLink, a.ContactID,
	))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}
	existing, err := r.GetByDateTime(ctx, a.DateTime)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSlotExists
		}
		return nil, err
	}
	if existing.Status == StatusBooked {
		return nil, ErrSlotBooked
	}
	return nil, ErrSlotExists
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (*Appointment, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.DateTime != nil {
		set("date_time", *patch.DateTime)
	}
	if patch.DurationMinutes != nil {
		set("duration_minutes", *patch.DurationMinutes)
	}
	if patch.CustomerName != nil {
		set("customer_name", *patch.CustomerName)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.MeetLink != nil {
		set("meet_link", *patch.MeetLink)
	}
	if patch.ContactID != nil {
		set("contact_id", *patch.ContactID)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE appointments SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), selectColumns)

	a, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrSlotExists
		}
		return nil, fmt.Errorf("appointments: update failed: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Toggle runs as two atomic statements: an insert that only succeeds when the
// instant is free, then a conditional flip that never touches a booked row.
func (r *PostgresRepository) Toggle(ctx context.Context, at time.Time, durationMinutes int) (*Appointment, bool, error) {
	insert := `
		INSERT INTO appointments (id, date_time, duration_minutes, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date_time) DO NOTHING
		RETURNING ` + selectColumns
	flip := `
		UPDATE appointments
		SET status = CASE WHEN status = $2 THEN $3 ELSE $2 END
		WHERE date_time = $1 AND status <> $4
		RETURNING ` + selectColumns

	for attempt := 0; attempt < toggleRetries; attempt++ {
		a, err := scanAppointment(r.db.QueryRow(ctx, insert, uuid.NewString(), at, durationMinutes, string(StatusAvailable)))
		if err == nil {
			return a, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("appointments: toggle insert: %w", err)
		}

		a, err = scanAppointment(r.db.QueryRow(ctx, flip, at,
			string(StatusAvailable), string(StatusUnavailable), string(StatusBooked)))
		if err == nil {
			return a, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("appointments: toggle update: %w", err)
		}

		existing, err := r.GetByDateTime(ctx, at)
		switch {
		case err == nil && existing.Status == StatusBooked:
			return nil, false, ErrSlotBooked
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, false, err
		}
		// The row vanished between statements; start over.
	}
	return nil, false, fmt.Errorf("appointments: toggle did not settle after %d attempts", toggleRetries)
}

// Book upserts the slot as booked unless a booked row already holds it.
func (r *PostgresRepository) Book(ctx context.Context, at time.Time, d BookingDetails) (*Appointment, error) {
	query := `
		INSERT INTO appointments (id, title, date_time, duration_minutes, customer_name, notes, status, phone, meet_link, contact_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (date_time) DO UPDATE SET
			status = EXCLUDED.status,
			title = COALESCE(EXCLUDED.title, appointments.title),
			duration_minutes = CASE WHEN $11 THEN EXCLUDED.duration_minutes ELSE appointments.duration_minutes END,
			customer_name = EXCLUDED.customer_name,
			notes = EXCLUDED.notes,
			phone = EXCLUDED.phone,
			meet_link = COALESCE(EXCLUDED.meet_link, appointments.meet_link),
			contact_id = EXCLUDED.contact_id
		WHERE appointments.status <> EXCLUDED.status
		RETURNING ` + selectColumns
	a, err := scanAppointment(r.db.QueryRow(ctx, query,
		uuid.NewString(), d.Title, at, d.DurationMinutes, d.CustomerName, d.Notes,
		string(StatusBooked), d.Phone, d.MeetLink, d.ContactID, d.OverrideDuration,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotBooked
		}
		return nil, fmt.Errorf("appointments: book failed: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) queryRows(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: query failed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.DateTime,
		&a.DurationMinutes,
		&a.CustomerName,
		&a.Notes,
		&status,
		&a.Phone,
		&a.MeetLink,
		&a.ContactID,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
