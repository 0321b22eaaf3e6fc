package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

var tracer = otel.Tracer("autoflow.customers")

// Service wraps the repository with lead-capture behaviour.
type Service struct {
	repo      Repository
	publisher events.Publisher
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher events.Publisher, m *metrics.CRMMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, publisher: publisher, metrics: m, logger: logger, now: time.Now}
}

// Repository exposes the underlying store for handlers.
func (s *Service) Repository() Repository { return s.repo }

// CaptureLead records an inbound inquiry. A known email reuses the existing
// customer and appends the message to its notes; otherwise a new lead is created.
func (s *Service) CaptureLead(ctx context.Context, req ContactRequest, source Source) (*Customer, bool, error) {
	ctx, span := tracer.Start(ctx, "customers.capture_lead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.source", string(source)))

	create := &CreateCustomerRequest{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Status:  StatusLead,
		Source:  source,
	}
	create.Normalize()
	if err := create.Validate(); err != nil {
		return nil, false, err
	}

	message := strings.TrimSpace(req.Message)
	customer, created, err := s.upsert(ctx, create, message)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	s.metrics.ObserveLead(string(source))
	if s.publisher != nil {
		evt := events.LeadCapturedV1{
			CustomerID: customer.ID,
			Name:       customer.Name,
			Email:      customer.Email,
			Phone:      customer.Phone,
			Company:    customer.Company,
			Source:     string(source),
			Message:    message,
			CapturedAt: s.now().UTC(),
		}
		if err := s.publisher.Publish(ctx, "customer:"+customer.ID, evt); err != nil {
			s.logger.Warn("failed to publish lead captured", "customer_id", customer.ID, "error", err)
		}
	}

	s.logger.Info("lead captured", "customer_id", customer.ID, "source", source, "new", created)
	return customer, created, nil
}

func (s *Service) upsert(ctx context.Context, create *CreateCustomerRequest, message string) (*Customer, bool, error) {
	if create.Email != "" {
		existing, err := s.repo.FindByEmail(ctx, create.Email)
		switch {
		case err == nil:
			if message == "" {
				return existing, false, nil
			}
			notes := appendNote(existing.Notes, s.now(), message)
			updated, err := s.repo.Update(ctx, existing.ID, &UpdateCustomerRequest{Notes: &notes})
			if err != nil {
				return nil, false, fmt.Errorf("customers: append inquiry: %w", err)
			}
			return updated, false, nil
		case !errors.Is(err, ErrCustomerNotFound):
			return nil, false, err
		}
	}

	create.Notes = message
	customer, err := s.repo.Create(ctx, create)
	if err != nil {
		return nil, false, err
	}
	return customer, true, nil
}

// RegisterPortalCustomer links a portal signup to a customer record,
// promoting an existing lead to active.
func (s *Service) RegisterPortalCustomer(ctx context.Context, name, email, phone string) (string, error) {
	existing, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		if existing.Status == StatusLead {
			active := StatusActive
			if _, err := s.repo.Update(ctx, existing.ID, &UpdateCustomerRequest{Status: &active}); err != nil {
				return "", err
			}
		}
		return existing.ID, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return "", err
	}

	customer, err := s.repo.Create(ctx, &CreateCustomerRequest{
		Name:   name,
		Email:  email,
		Phone:  phone,
		Status: StatusActive,
		Source: SourcePortal,
	})
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func appendNote(notes string, at time.Time, message string) string {
	entry := fmt.Sprintf("[%s] %s", at.UTC().Format("2006-01-02"), message)
	if strings.TrimSpace(notes) == "" {
		return entry
	}
	return notes + "\n" + entry
}
