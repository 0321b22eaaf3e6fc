package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

var tracer = otel.Tracer("autoflow.billing")

// SessionCreator creates hosted checkout sessions. *session.Client from
// stripe-go satisfies it.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeSessionCreator returns the Checkout Sessions client for secretKey.
func NewStripeSessionCreator(secretKey string) SessionCreator {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return sc.CheckoutSessions
}

// FakeSessionCreator returns local URLs so checkout can be exercised
// without Stripe credentials. Never enable it in production.
type FakeSessionCreator struct {
	BaseURL string
}

func (f FakeSessionCreator) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	paymentID := stripe.StringValue(params.ClientReferenceID)
	if paymentID == "" {
		return nil, fmt.Errorf("billing: fake checkout requires a client reference id")
	}
	base := strings.TrimRight(strings.TrimSpace(f.BaseURL), "/")
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("billing: fake checkout requires an absolute base url")
	}
	return &stripe.CheckoutSession{
		ID:  "cs_fake_" + paymentID,
		URL: fmt.Sprintf("%s/billing/fake-checkout/%s", base, paymentID),
	}, nil
}

// CustomerLookup resolves the buyer's contact details.
type CustomerLookup interface {
	Get(ctx context.Context, id string) (*customers.Customer, error)
}

// CheckoutService records a pending payment and opens a hosted checkout for it.
type CheckoutService struct {
	repo       Repository
	sessions   SessionCreator
	lookup     CustomerLookup
	metrics    *metrics.CRMMetrics
	logger     *logging.Logger
	currency   string
	successURL string
	cancelURL  string
}

type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

func NewCheckoutService(repo Repository, sessions SessionCreator, lookup CustomerLookup, cfg CheckoutConfig, m *metrics.CRMMetrics, logger *logging.Logger) *CheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutService{
		repo:       repo,
		sessions:   sessions,
		lookup:     lookup,
		metrics:    m,
		logger:     logger,
		currency:   normalizeCurrency(cfg.Currency),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

// Currency is the currency every package is priced in.
func (s *CheckoutService) Currency() string { return s.currency }

// Repository exposes the payment store for admin listings.
func (s *CheckoutService) Repository() Repository { return s.repo }

// Checkout creates a pending payment for packageID and returns it with the
// hosted checkout URL filled in.
func (s *CheckoutService) Checkout(ctx context.Context, customerID, packageID string) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "billing.checkout")
	defer span.End()
	span.SetAttributes(attribute.String("billing.package_id", packageID))

	if s.sessions == nil {
		return nil, ErrCheckoutUnavailable
	}
	if customerID == "" {
		return nil, ErrMissingCustomer
	}
	pkg, err := FindPackage(packageID, s.currency)
	if err != nil {
		return nil, err
	}
	customer, err := s.lookup.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, customers.ErrCustomerNotFound) {
			return nil, ErrMissingCustomer
		}
		return nil, fmt.Errorf("billing: load customer: %w", err)
	}

	payment, err := s.repo.Create(ctx, &Payment{
		CustomerID:  customer.ID,
		PackageID:   pkg.ID,
		AmountCents: pkg.AmountCents,
		Currency:    pkg.Currency,
		Status:      StatusPending,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(payment.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(pkg.Currency),
					UnitAmount: stripe.Int64(pkg.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(pkg.Name),
						Description: stripe.String(pkg.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if customer.Email != "" {
		params.CustomerEmail = stripe.String(customer.Email)
	}
	params.AddMetadata("payment_id", payment.ID)
	params.AddMetadata("customer_id", customer.ID)
	params.AddMetadata("package_id", pkg.ID)
	params.SetIdempotencyKey("checkout-" + payment.ID)

	session, err := s.sessions.New(params)
	if err != nil {
		span.RecordError(err)
		if _, _, uerr := s.repo.UpdateStatus(ctx, payment.ID, StatusFailed, ""); uerr != nil {
			s.logger.Warn("failed to mark payment failed", "payment_id", payment.ID, "error", uerr)
		}
		s.metrics.ObservePayment(string(StatusFailed), pkg.Currency, 0)
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	updated, err := s.repo.SetCheckout(ctx, payment.ID, session.URL, session.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObservePayment(string(StatusPending), pkg.Currency, 0)
	s.logger.Info("checkout session created", "payment_id", payment.ID, "customer_id", customer.ID, "package_id", pkg.ID)
	return updated, nil
}
