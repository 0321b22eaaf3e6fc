package appointments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// Handler serves appointment endpoints for customers and admins.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Recommendations handles GET /api/appointments/recommendations
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	req, err := scheduling.ParseRequest(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.service.Recommend(r.Context(), req)
	if err != nil {
		h.writeError(w, "recommend", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// Book handles POST /api/appointments. Customers always book for their own
// profile; admins name the customer in the body.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateAppointmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !principal.IsAdmin() {
		if principal.CustomerID == "" {
			httputil.WriteError(w, http.StatusForbidden, "no customer profile linked to this account")
			return
		}
		req.CustomerID = principal.CustomerID
	}

	appt, err := h.service.Book(r.Context(), req)
	if err != nil {
		h.writeError(w, "book", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, appt)
}

// Mine handles GET /api/portal/appointments
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if principal.CustomerID == "" {
		httputil.WriteError(w, http.StatusForbidden, "no customer profile linked to this account")
		return
	}
	filter := ListFilter{
		CustomerID: principal.CustomerID,
		From:       r.URL.Query().Get("from"),
		Status:     Status(r.URL.Query().Get("status")),
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list own", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// CancelOwn handles POST /api/portal/appointments/{appointmentID}/cancel
func (h *Handler) CancelOwn(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "appointmentID")

	appt, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "cancel own", err)
		return
	}
	if principal.CustomerID == "" || appt.CustomerID != principal.CustomerID {
		h.writeError(w, "cancel own", ErrForbidden)
		return
	}

	cancelled, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, "cancel own", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cancelled)
}

// List handles GET /api/admin/appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		From:       q.Get("from"),
		To:         q.Get("to"),
		CustomerID: q.Get("customer_id"),
		Status:     Status(q.Get("status")),
		Limit:      100,
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// Get handles GET /api/admin/appointments/{appointmentID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.Get(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appt)
}

// Update handles PATCH /api/admin/appointments/{appointmentID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateAppointmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.service.Update(r.Context(), chi.URLParam(r, "appointmentID"), &req)
	if err != nil {
		h.writeError(w, "update", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appt)
}

// UpdateStatus handles PATCH /api/admin/appointments/{appointmentID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.service.ChangeStatus(r.Context(), chi.URLParam(r, "appointmentID"), req.Status)
	if err != nil {
		h.writeError(w, "update status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appt)
}

// Reschedule handles POST /api/admin/appointments/{appointmentID}/reschedule
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.service.Reschedule(r.Context(), chi.URLParam(r, "appointmentID"), req)
	if err != nil {
		h.writeError(w, "reschedule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appt)
}

// Cancel handles POST /api/admin/appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.Cancel(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, "cancel", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appt)
}

// Schedule handles GET /api/admin/schedule?from=&to=
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	days, err := h.service.Schedule(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, "schedule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrSlotConflict):
		httputil.WriteErrorCode(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httputil.WriteErrorCode(w, http.StatusConflict, "invalid_transition", err.Error())
	case IsValidationError(err):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAppointmentNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		httputil.WriteError(w, http.StatusForbidden, err.Error())
	default:
		h.logger.Error("appointments request failed", "op", op, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
