package dashboard

import (
	"net/http"
	"time"

	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// Handler serves GET /api/admin/dashboard.
type Handler struct {
	source   Source
	chat     OpenChatCounter
	loc      *time.Location
	currency string
	now      func() time.Time
	logger   *logging.Logger
}

func NewHandler(source Source, chat OpenChatCounter, loc *time.Location, currency string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if currency == "" {
		currency = "usd"
	}
	return &Handler{source: source, chat: chat, loc: loc, currency: currency, now: time.Now, logger: logger}
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	win := NewWindow(h.now(), h.loc)
	overview, err := h.source.Collect(r.Context(), win)
	if err != nil {
		h.logger.Error("dashboard: collect failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	overview.GeneratedAt = win.Now.UTC()
	overview.WeekStart = win.WeekFrom
	overview.WeekEnd = win.WeekTo
	overview.Revenue.Currency = h.currency

	// Chat lives in redis; a miss there should not blank the whole dashboard.
	if h.chat != nil {
		open, err := h.chat.CountOpen(r.Context())
		if err != nil {
			h.logger.Warn("dashboard: count open chats failed", "error", err)
		} else {
			overview.Chat.OpenSessions = open
		}
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}
