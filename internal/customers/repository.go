package customers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for customer storage
type Repository interface {
	Create(ctx context.Context, req *CreateCustomerRequest) (*Customer, error)
	Get(ctx context.Context, id string) (*Customer, error)
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Update(ctx context.Context, id string, req *UpdateCustomerRequest) (*Customer, error)
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository stores customers in memory
type InMemoryRepository struct {
	mu        sync.RWMutex
	customers map[string]*Customer
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		customers: make(map[string]*Customer),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, req *CreateCustomerRequest) (*Customer, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Email != "" && r.findByEmailLocked(req.Email) != nil {
		return nil, ErrDuplicateEmail
	}

	now := time.Now().UTC()
	customer := &Customer{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Company:   req.Company,
		Status:    req.Status,
		Source:    req.Source,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.customers[customer.ID] = customer

	out := *customer
	return &out, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	out := *customer
	return &out, nil
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer := r.findByEmailLocked(normalizeEmail(email))
	if customer == nil {
		return nil, ErrCustomerNotFound
	}
	out := *customer
	return &out, nil
}

func (r *InMemoryRepository) findByEmailLocked(email string) *Customer {
	if email == "" {
		return nil
	}
	for _, c := range r.customers {
		if c.Email == email {
			return c
		}
	}
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []*Customer
	for _, c := range r.customers {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(c.Email, search) &&
			!strings.Contains(strings.ToLower(c.Company), search) {
			continue
		}
		out := *c
		matched = append(matched, &out)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	result := &ListResult{Total: len(matched), Limit: filter.Limit, Offset: filter.Offset, Customers: []*Customer{}}
	if filter.Offset >= len(matched) {
		return result, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	result.Customers = matched[filter.Offset:end]
	return result, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, req *UpdateCustomerRequest) (*Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	updated := *existing
	if err := req.Apply(&updated); err != nil {
		return nil, err
	}
	if updated.Email != "" && updated.Email != existing.Email {
		if other := r.findByEmailLocked(updated.Email); other != nil && other.ID != id {
			return nil, ErrDuplicateEmail
		}
	}
	updated.UpdatedAt = time.Now().UTC()
	r.customers[id] = &updated

	out := updated
	return &out, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.customers[id]; !ok {
		return ErrCustomerNotFound
	}
	delete(r.customers, id)
	return nil
}
