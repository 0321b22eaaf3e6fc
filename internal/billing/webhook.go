package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

const (
	maxWebhookBody = 64 << 10
	providerStripe = "stripe"
)

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WebhookHandler consumes Stripe checkout events.
type WebhookHandler struct {
	secret    string
	repo      Repository
	processed processedTracker
	publisher events.Publisher
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
}

func NewWebhookHandler(secret string, repo Repository, processed processedTracker, publisher events.Publisher, m *metrics.CRMMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    secret,
		repo:      repo,
		processed: processed,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Handle serves POST /webhooks/stripe
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.secret == "" {
		h.logger.Error("stripe webhook received but no signing secret configured")
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe webhook signature rejected", "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var next Status
	switch string(evt.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		next = StatusSucceeded
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		next = StatusFailed
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if done, err := h.processed.AlreadyProcessed(r.Context(), providerStripe, evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "event_id", evt.ID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if done {
		w.WriteHeader(http.StatusOK)
		return
	}

	var session stripe.CheckoutSession
	if evt.Data == nil || json.Unmarshal(evt.Data.Raw, &session) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	// Delayed payment methods complete the session before the money arrives.
	if next == StatusSucceeded && session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.apply(r.Context(), evt, &session, next); err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			// Nothing we can progress; acknowledge so Stripe stops retrying.
			h.logger.Warn("stripe webhook for unknown payment", "event_id", evt.ID, "session_id", session.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("failed to apply stripe event", "event_id", evt.ID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.processed.MarkProcessed(r.Context(), providerStripe, evt.ID); err != nil {
		h.logger.Error("failed to record processed event", "event_id", evt.ID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) apply(ctx context.Context, evt stripe.Event, session *stripe.CheckoutSession, next Status) error {
	paymentID := session.Metadata["payment_id"]
	if paymentID == "" {
		paymentID = session.ClientReferenceID
	}
	if paymentID == "" {
		return ErrPaymentNotFound
	}

	ref := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		ref = session.PaymentIntent.ID
	}

	prev, payment, err := h.repo.UpdateStatus(ctx, paymentID, next, ref)
	if err != nil {
		return err
	}
	if payment.Status != next {
		h.logger.Info("stale stripe event ignored", "payment_id", payment.ID, "status", payment.Status, "event_status", next, "event_id", evt.ID)
		return nil
	}

	amount := payment.AmountCents
	if session.AmountTotal > 0 {
		amount = session.AmountTotal
	}
	if prev != next {
		h.metrics.ObservePayment(string(next), payment.Currency, amount)
		h.logger.Info("payment updated from stripe", "payment_id", payment.ID, "status", next, "event_id", evt.ID)
	}

	// Redelivery after a failed publish publishes again.
	if next != StatusSucceeded || h.publisher == nil {
		return nil
	}
	return h.publisher.Publish(ctx, "payment:"+payment.ID, events.PaymentSucceededV1{
		PaymentID:   payment.ID,
		CustomerID:  payment.CustomerID,
		PackageID:   payment.PackageID,
		Provider:    providerStripe,
		ProviderRef: ref,
		AmountCents: amount,
		Currency:    payment.Currency,
		OccurredAt:  time.Unix(evt.Created, 0).UTC(),
	})
}
