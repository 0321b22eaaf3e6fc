package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

type Handler struct {
	checkout *CheckoutService
	logger   *logging.Logger
}

func NewHandler(checkout *CheckoutService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{checkout: checkout, logger: logger}
}

// Packages handles GET /api/billing/packages
func (h *Handler) Packages(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"packages": Catalog(h.checkout.Currency()),
	})
}

type checkoutRequest struct {
	PackageID string `json:"package_id"`
}

type checkoutResponse struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Checkout handles POST /api/portal/billing/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req checkoutRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := h.checkout.Checkout(r.Context(), principal.CustomerID, req.PackageID)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownPackage):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrMissingCustomer):
		httputil.WriteError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, ErrCheckoutUnavailable):
		h.logger.Error("checkout unavailable", "customer_id", principal.CustomerID, "error", err)
		httputil.WriteErrorCode(w, http.StatusBadGateway, "checkout_unavailable", "payment provider is unavailable, please try again")
		return
	default:
		h.logger.Error("checkout failed", "customer_id", principal.CustomerID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID:   payment.ID,
		CheckoutURL: payment.CheckoutURL,
		AmountCents: payment.AmountCents,
		Currency:    payment.Currency,
	})
}

// MyPayments handles GET /api/portal/billing/payments
func (h *Handler) MyPayments(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.CustomerID == "" {
		httputil.WriteError(w, http.StatusForbidden, "no customer profile linked to this account")
		return
	}
	h.list(w, r, ListFilter{CustomerID: principal.CustomerID, Limit: 100})
}

// List handles GET /api/admin/payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		CustomerID: q.Get("customer_id"),
		Status:     Status(q.Get("status")),
		Limit:      50,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, ErrInvalidStatus.Error())
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}
	h.list(w, r, filter)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter ListFilter) {
	payments, total, err := h.checkout.Repository().List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list payments", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}
