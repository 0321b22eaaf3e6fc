package customers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// Handler handles HTTP requests for customers
type Handler struct {
	service *Service
	repo    Repository
	logger  *logging.Logger
}

// NewHandler creates a new customers handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, repo: service.Repository(), logger: logger}
}

// ContactResponse acknowledges a contact form submission.
type ContactResponse struct {
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
}

// Contact handles POST /api/contact
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	customer, _, err := h.service.CaptureLead(r.Context(), req, SourceContactForm)
	if err != nil {
		h.writeError(w, "capture lead", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, ContactResponse{
		CustomerID: customer.ID,
		Message:    "Thanks for reaching out. We'll be in touch within one business day.",
	})
}

// List handles GET /api/admin/customers
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Limit:  50,
		Offset: 0,
		Search: q.Get("search"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if status := Status(q.Get("status")); status != "" {
		if !status.Valid() {
			httputil.WriteError(w, http.StatusBadRequest, ErrInvalidStatus.Error())
			return
		}
		filter.Status = status
	}

	result, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list customers", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// Get handles GET /api/admin/customers/{customerID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customer, err := h.repo.Get(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		h.writeError(w, "get customer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, customer)
}

// Create handles POST /api/admin/customers
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	customer, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, "create customer", err)
		return
	}
	h.logger.Info("customer created", "customer_id", customer.ID, "source", customer.Source)
	httputil.WriteJSON(w, http.StatusCreated, customer)
}

// Update handles PATCH /api/admin/customers/{customerID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateCustomerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	customer, err := h.repo.Update(r.Context(), chi.URLParam(r, "customerID"), &req)
	if err != nil {
		h.writeError(w, "update customer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, customer)
}

// Delete handles DELETE /api/admin/customers/{customerID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "customerID")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.writeError(w, "delete customer", err)
		return
	}
	h.logger.Info("customer deleted", "customer_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/portal/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.CustomerID == "" {
		httputil.WriteError(w, http.StatusForbidden, "no customer profile linked to this account")
		return
	}
	customer, err := h.repo.Get(r.Context(), principal.CustomerID)
	if err != nil {
		h.writeError(w, "get portal customer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, customer)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case IsValidationError(err):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCustomerNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateEmail):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("customers request failed", "op", op, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
