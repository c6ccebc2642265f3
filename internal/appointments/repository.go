package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage. Toggle and Book
// must be atomic with respect to concurrent callers on the same instant.
type Repository interface {
	List(ctx context.Context, start, end *time.Time) ([]Appointment, error)
	ListByStatus(ctx context.Context, status Status) ([]Appointment, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)
	GetByDateTime(ctx context.Context, at time.Time) (*Appointment, error)
	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	Update(ctx context.Context, id string, patch Patch) (*Appointment, error)
	Delete(ctx context.Context, id string) error
	// Toggle flips available/unavailable, creating the row as available when
	// absent. created reports whether a row was inserted.
	Toggle(ctx context.Context, at time.Time, durationMinutes int) (a *Appointment, created bool, err error)
	Book(ctx context.Context, at time.Time, details BookingDetails) (*Appointment, error)
}

// InMemoryRepository keeps appointments in a map guarded by one mutex, so
// every check-then-write sequence is atomic.
type InMemoryRepository struct {
	mu    sync.Mutex
	rows  map[string]*Appointment
	clock func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rows:  make(map[string]*Appointment),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) List(_ context.Context, start, end *time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.rows {
		if start != nil && a.DateTime.Before(*start) {
			continue
		}
		if end != nil && a.DateTime.After(*end) {
			continue
		}
		out = append(out, *a)
	}
	sortByDateTime(out)
	return out, nil
}

func (r *InMemoryRepository) ListByStatus(_ context.Context, status Status) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.rows {
		if a.Status == status {
			out = append(out, *a)
		}
	}
	sortByDateTime(out)
	return out, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepository) GetByDateTime(_ context.Context, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findLocked(at)
	if a == nil {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepository) Insert(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.findLocked(a.DateTime); existing != nil {
		if existing.Status == StatusBooked {
			return nil, ErrSlotBooked
		}
		return nil, ErrSlotExists
	}
	row := *a
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt = r.clock()
	r.rows[row.ID] = &row
	cp := row
	return &cp, nil
}

func (r *InMemoryRepository) Update(_ context.Context, id string, patch Patch) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.DateTime != nil {
		if other := r.findLocked(*patch.DateTime); other != nil && other.ID != id {
			return nil, ErrSlotExists
		}
	}
	patch.apply(a)
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *InMemoryRepository) Toggle(_ context.Context, at time.Time, durationMinutes int) (*Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findLocked(at)
	if a == nil {
		row := &Appointment{
			ID:              uuid.NewString(),
			DateTime:        at,
			DurationMinutes: durationMinutes,
			Status:          StatusAvailable,
			CreatedAt:       r.clock(),
		}
		r.rows[row.ID] = row
		cp := *row
		return &cp, true, nil
	}
	switch a.Status {
	case StatusBooked:
		return nil, false, ErrSlotBooked
	case StatusAvailable:
		a.Status = StatusUnavailable
	default:
		a.Status = StatusAvailable
	}
	cp := *a
	return &cp, false, nil
}

func (r *InMemoryRepository) Book(_ context.Context, at time.Time, d BookingDetails) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findLocked(at)
	if a == nil {
		a = &Appointment{
			ID:              uuid.NewString(),
			DateTime:        at,
			DurationMinutes: d.DurationMinutes,
			CreatedAt:       r.clock(),
		}
		r.rows[a.ID] = a
	} else if a.Status == StatusBooked {
		return nil, ErrSlotBooked
	} else if d.OverrideDuration {
		a.DurationMinutes = d.DurationMinutes
	}
	a.Status = StatusBooked
	if d.Title != nil {
		a.Title = d.Title
	}
	a.CustomerName = d.CustomerName
	a.Notes = d.Notes
	a.Phone = d.Phone
	if d.MeetLink != nil {
		a.MeetLink = d.MeetLink
	}
	a.ContactID = d.ContactID
	cp := *a
	return &cp, nil
}

// findLocked returns the first row at the instant. Caller holds r.mu.
func (r *InMemoryRepository) findLocked(at time.Time) *Appointment {
	for _, a := range r.rows {
		if a.DateTime.Equal(at) {
			return a
		}
	}
	return nil
}

func sortByDateTime(rows []Appointment) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].DateTime.Before(rows[j].DateTime) })
}
