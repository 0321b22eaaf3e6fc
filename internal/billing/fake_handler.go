package billing

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

const providerFake = "fake"

// FakeCheckoutHandler is the local stand-in for the Stripe hosted page that
// FakeSessionCreator links to. Only mount it when Stripe is not configured.
type FakeCheckoutHandler struct {
	repo       Repository
	publisher  events.Publisher
	successURL string
	metrics    *metrics.CRMMetrics
	logger     *logging.Logger
}

func NewFakeCheckoutHandler(repo Repository, publisher events.Publisher, successURL string, m *metrics.CRMMetrics, logger *logging.Logger) *FakeCheckoutHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckoutHandler{repo: repo, publisher: publisher, successURL: successURL, metrics: m, logger: logger}
}

// Routes mounts under /billing/fake-checkout.
func (h *FakeCheckoutHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{paymentID}", h.Page)
	r.Post("/{paymentID}/complete", h.Complete)
	return r
}

func (h *FakeCheckoutHandler) Page(w http.ResponseWriter, r *http.Request) {
	payment, err := h.repo.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	name := payment.PackageID
	if pkg, err := FindPackage(payment.PackageID, payment.Currency); err == nil {
		name = pkg.Name
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Test checkout</title>
    <style>
      body{font-family:system-ui,sans-serif;max-width:640px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{background:#111827;color:#fff;padding:12px 16px;border-radius:10px;border:0;cursor:pointer;}
      .muted{color:#6b7280;font-size:14px;}
    </style>
  </head>
  <body>
    <h1>Test checkout</h1>
    <div class="card">
      <p><strong>%s</strong></p>
      <p><strong>Amount:</strong> %.2f %s</p>
      <p><strong>Status:</strong> %s</p>
      <p class="muted">No real payment is processed.</p>
      <form method="POST" action="/billing/fake-checkout/%s/complete">
        <button class="btn" type="submit">Pay now</button>
      </form>
    </div>
  </body>
</html>`, html.EscapeString(name), float64(payment.AmountCents)/100, html.EscapeString(payment.Currency),
		html.EscapeString(string(payment.Status)), html.EscapeString(payment.ID))
}

// Complete marks the payment succeeded and publishes the same event a real
// Stripe webhook would.
func (h *FakeCheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")
	ref := "fake_" + id
	prev, payment, err := h.repo.UpdateStatus(r.Context(), id, StatusSucceeded, ref)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("fake checkout completion failed", "payment_id", id, "error", err)
		http.Error(w, "failed to complete payment", http.StatusInternalServerError)
		return
	}

	if prev != StatusSucceeded {
		h.metrics.ObservePayment(string(StatusSucceeded), payment.Currency, payment.AmountCents)
		if h.publisher != nil {
			if err := h.publisher.Publish(r.Context(), "payment:"+payment.ID, events.PaymentSucceededV1{
				PaymentID:   payment.ID,
				CustomerID:  payment.CustomerID,
				PackageID:   payment.PackageID,
				Provider:    providerFake,
				ProviderRef: ref,
				AmountCents: payment.AmountCents,
				Currency:    payment.Currency,
				OccurredAt:  time.Now().UTC(),
			}); err != nil {
				h.logger.Error("failed to publish fake payment", "payment_id", payment.ID, "error", err)
			}
		}
		h.logger.Info("fake checkout completed", "payment_id", payment.ID)
	}

	if h.successURL != "" {
		http.Redirect(w, r, h.successURL, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html><html><body><h1>Payment complete</h1><p>Reference: %s</p></body></html>`, html.EscapeString(ref))
}
