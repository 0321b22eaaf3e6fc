package dashboard

import (
	"context"
	"fmt"
	"slices"

	"github.com/autoflowlabs/consultancy-crm/internal/appointments"
	"github.com/autoflowlabs/consultancy-crm/internal/billing"
	"github.com/autoflowlabs/consultancy-crm/internal/customers"
)

type customerLister interface {
	List(ctx context.Context, filter customers.ListFilter) (*customers.ListResult, error)
}

type appointmentLister interface {
	List(ctx context.Context, filter appointments.ListFilter) ([]*appointments.Appointment, error)
}

type paymentLister interface {
	List(ctx context.Context, filter billing.ListFilter) ([]*billing.Payment, int, error)
}

// RepositorySource aggregates over the repositories. It backs the dashboard
// when the API runs without Postgres.
type RepositorySource struct {
	customers    customerLister
	appointments appointmentLister
	payments     paymentLister
}

func NewRepositorySource(c customerLister, a appointmentLister, p paymentLister) *RepositorySource {
	return &RepositorySource{customers: c, appointments: a, payments: p}
}

func (s *RepositorySource) Collect(ctx context.Context, w Window) (*Overview, error) {
	o := &Overview{Customers: CustomerMetrics{ByStatus: map[string]int{}}}

	if s.customers != nil {
		res, err := s.customers.List(ctx, customers.ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("dashboard: list customers: %w", err)
		}
		for _, c := range res.Customers {
			o.Customers.ByStatus[string(c.Status)]++
			o.Customers.Total++
			if c.Status == customers.StatusLead && !c.CreatedAt.Before(w.WeekStart) {
				o.Customers.NewLeadsThisWeek++
			}
		}
	}

	if s.appointments != nil {
		list, err := s.appointments.List(ctx, appointments.ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("dashboard: list appointments: %w", err)
		}
		for _, a := range list {
			if a.Status == appointments.StatusCancelled {
				o.Appointments.CancelledCount++
				continue
			}
			if a.Date >= w.WeekFrom && a.Date <= w.WeekTo {
				o.Appointments.ThisWeek++
			}
			if slices.Contains(activeStatuses, string(a.Status)) &&
				(a.Date > w.Today || (a.Date == w.Today && a.StartTime >= w.Clock)) {
				o.Appointments.Upcoming++
			}
		}
	}

	if s.payments != nil {
		list, _, err := s.payments.List(ctx, billing.ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("dashboard: list payments: %w", err)
		}
		for _, p := range list {
			switch p.Status {
			case billing.StatusSucceeded:
				o.Revenue.TotalCents += p.AmountCents
				o.Revenue.PaidCount++
				if !p.UpdatedAt.Before(w.WeekStart) {
					o.Revenue.ThisWeekCents += p.AmountCents
				}
			case billing.StatusPending:
				o.Revenue.PendingPayments++
			}
		}
	}
	return o, nil
}
