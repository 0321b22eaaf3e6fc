package scheduling

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// SettingsHandler provides admin endpoints for scheduling settings.
type SettingsHandler struct {
	store  SettingsStore
	logger *logging.Logger
}

// NewSettingsHandler creates a new settings HTTP handler.
func NewSettingsHandler(store SettingsStore, logger *logging.Logger) *SettingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

// Routes mounts under /api/admin/scheduling.
func (h *SettingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	return r
}

// GetSettings returns the active settings.
// GET /api/admin/scheduling/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get scheduling settings", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

// UpdateSettingsRequest is a partial update; omitted fields keep their value.
type UpdateSettingsRequest struct {
	Timezone           string         `json:"timezone,omitempty"`
	GranularityMinutes *int           `json:"granularity_minutes,omitempty"`
	MaxRecommendations *int           `json:"max_recommendations,omitempty"`
	BusinessHours      *BusinessHours `json:"business_hours,omitempty"`
}

// UpdateSettings applies a partial update.
// PUT /api/admin/scheduling/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get scheduling settings", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if req.Timezone != "" {
		settings.Timezone = req.Timezone
	}
	if req.GranularityMinutes != nil {
		settings.GranularityMinutes = *req.GranularityMinutes
	}
	if req.MaxRecommendations != nil {
		settings.MaxRecommendations = *req.MaxRecommendations
	}
	if req.BusinessHours != nil {
		settings.BusinessHours = *req.BusinessHours
	}

	if err := settings.Validate(); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Set(r.Context(), settings); err != nil {
		h.logger.Error("failed to save scheduling settings", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	h.logger.Info("scheduling settings updated", "timezone", settings.Timezone, "granularity", settings.GranularityMinutes)
	httputil.WriteJSON(w, http.StatusOK, settings)
}
