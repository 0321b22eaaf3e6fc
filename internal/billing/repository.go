package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists payments.
type Repository interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	Get(ctx context.Context, id string) (*Payment, error)
	SetCheckout(ctx context.Context, id, checkoutURL, providerRef string) (*Payment, error)
	// UpdateStatus returns the previous status alongside the updated row.
	// Succeeded is final: updating a succeeded payment leaves it untouched.
	UpdateStatus(ctx context.Context, id string, status Status, providerRef string) (Status, *Payment, error)
	List(ctx context.Context, filter ListFilter) ([]*Payment, int, error)
}

type InMemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]*Payment
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{payments: make(map[string]*Payment)}
}

func (r *InMemoryRepository) Create(_ context.Context, p *Payment) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.ID = uuid.NewString()
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	r.payments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) SetCheckout(_ context.Context, id, checkoutURL, providerRef string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	p.CheckoutURL = checkoutURL
	p.ProviderRef = providerRef
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, status Status, providerRef string) (Status, *Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return "", nil, ErrPaymentNotFound
	}
	prev := p.Status
	if prev != StatusSucceeded {
		p.Status = status
		if providerRef != "" {
			p.ProviderRef = providerRef
		}
		p.UpdatedAt = time.Now().UTC()
	}
	cp := *p
	return prev, &cp, nil
}

func (r *InMemoryRepository) List(_ context.Context, filter ListFilter) ([]*Payment, int, error) {
	r.mu.RLock()
	matched := make([]*Payment, 0, len(r.payments))
	for _, p := range r.payments {
		if filter.CustomerID != "" && p.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Payment{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}
