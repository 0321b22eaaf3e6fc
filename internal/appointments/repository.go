package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
)

// SlotCheck inspects the bookings already on the target date and returns an
// error when the new slot must be rejected. Repositories call it while holding
// their write lock for that date.
type SlotCheck func(existing []scheduling.Booking) error

// Repository defines appointment storage.
type Repository interface {
	CreateIfAvailable(ctx context.Context, appt *Appointment, check SlotCheck) (*Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]*Appointment, error)
	// ListBetween returns every appointment dated from..to inclusive, cancelled ones included.
	ListBetween(ctx context.Context, from, to string) ([]*Appointment, error)
	Update(ctx context.Context, id string, req *UpdateAppointmentRequest) (*Appointment, error)
	// UpdateStatus applies a transition and returns the status it replaced.
	UpdateStatus(ctx context.Context, id string, next Status) (Status, *Appointment, error)
	// Reschedule moves an active appointment, re-checking the target date
	// without counting the appointment itself. It returns the pre-move copy.
	Reschedule(ctx context.Context, id, date, startTime string, durationMinutes int, check SlotCheck) (*Appointment, *Appointment, error)
}

// InMemoryRepository keeps appointments in a map guarded by a single mutex,
// which serializes every booking re-check.
type InMemoryRepository struct {
	mu           sync.Mutex
	appointments map[string]*Appointment
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{appointments: make(map[string]*Appointment)}
}

func (r *InMemoryRepository) CreateIfAvailable(ctx context.Context, appt *Appointment, check SlotCheck) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if check != nil {
		if err := check(r.bookingsOnLocked(appt.Date, "")); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	stored := *appt
	stored.ID = uuid.New().String()
	if stored.Status == "" {
		stored.Status = StatusScheduled
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.appointments[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (r *InMemoryRepository) bookingsOnLocked(date, exclude string) []scheduling.Booking {
	var bookings []scheduling.Booking
	for _, a := range r.appointments {
		if a.Date != date || a.ID == exclude || a.Status == StatusCancelled {
			continue
		}
		bookings = append(bookings, a.Booking())
	}
	return bookings
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*Appointment
	for _, a := range r.appointments {
		if filter.From != "" && a.Date < filter.From {
			continue
		}
		if filter.To != "" && a.Date > filter.To {
			continue
		}
		if filter.CustomerID != "" && a.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out := *a
		matched = append(matched, &out)
	}
	sortChronologically(matched)

	if filter.Offset >= len(matched) {
		return []*Appointment{}, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], nil
}

func (r *InMemoryRepository) ListBetween(ctx context.Context, from, to string) ([]*Appointment, error) {
	return r.List(ctx, ListFilter{From: from, To: to})
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, req *UpdateAppointmentRequest) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	updated := *existing
	if err := req.Apply(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	r.appointments[id] = &updated

	out := updated
	return &out, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, next Status) (Status, *Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.appointments[id]
	if !ok {
		return "", nil, ErrAppointmentNotFound
	}
	prev := existing.Status
	if !prev.CanTransitionTo(next) {
		return prev, nil, ErrInvalidTransition
	}
	updated := *existing
	updated.Status = next
	updated.UpdatedAt = time.Now().UTC()
	r.appointments[id] = &updated

	out := updated
	return prev, &out, nil
}

func (r *InMemoryRepository) Reschedule(ctx context.Context, id, date, startTime string, durationMinutes int, check SlotCheck) (*Appointment, *Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.appointments[id]
	if !ok {
		return nil, nil, ErrAppointmentNotFound
	}
	if !existing.Status.Active() {
		return nil, nil, ErrNotRescheduleable
	}
	if check != nil {
		if err := check(r.bookingsOnLocked(date, id)); err != nil {
			return nil, nil, err
		}
	}

	previous := *existing
	updated := *existing
	updated.Date = date
	updated.StartTime = startTime
	updated.DurationMinutes = durationMinutes
	updated.UpdatedAt = time.Now().UTC()
	r.appointments[id] = &updated

	out := updated
	return &previous, &out, nil
}

func sortChronologically(list []*Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		if list[i].StartTime != list[j].StartTime {
			return list[i].StartTime < list[j].StartTime
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
