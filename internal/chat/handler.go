package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 8 << 10
	clientSendSize = 16
)

// Handler serves the public widget endpoints and the admin session views.
type Handler struct {
	service  *Service
	logger   *logging.Logger
	upgrader websocket.Upgrader
	hub      *hub
}

func NewHandler(service *Service, allowedOrigins []string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		hub: newHub(),
	}
}

// originChecker allows requests without an Origin header and, when a list is
// configured, only the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Session  *Session  `json:"session"`
	Messages []Message `json:"messages"`
}

// Start handles POST /api/chat/sessions
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Start(r.Context())
	if err != nil {
		h.writeError(w, "start session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

// SendMessage handles POST /api/chat/sessions/{sessionID}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "sessionID")
	session, msgs, err := h.service.Send(r.Context(), id, req.Text, TransportREST)
	if err != nil {
		h.writeError(w, "send message", err)
		return
	}
	h.hub.broadcast(id, msgs)
	httputil.WriteJSON(w, http.StatusOK, sendMessageResponse{Session: session, Messages: msgs})
}

// Get handles GET /api/chat/sessions/{sessionID} and the admin detail view.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, "get session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

// List handles GET /api/admin/chat/sessions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Limit: 50}
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

	sessions, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list sessions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// Close handles POST /api/admin/chat/sessions/{sessionID}/close
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.service.Close(r.Context(), id)
	if err != nil {
		h.writeError(w, "close session", err)
		return
	}
	h.hub.closeSession(id)
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionClosed):
		httputil.WriteErrorCode(w, http.StatusConflict, "session_closed", err.Error())
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrInvalidStatus):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("chat handler failed", "op", op, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Frame is the websocket envelope in both directions.
type Frame struct {
	Type    string   `json:"type"` // history|message|ping|pong|error
	Text    string   `json:"text,omitempty"`
	Session *Session `json:"session,omitempty"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Websocket handles GET /api/chat/sessions/{sessionID}/ws
func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "websocket lookup", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}

	c := &wsClient{ctx: r.Context(), sessionID: id, conn: conn, send: make(chan Frame, clientSendSize)}
	c.send <- Frame{Type: "history", Session: session}
	h.hub.register(c)
	h.logger.Debug("websocket connected", "session_id", id)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Handler) readPump(c *wsClient) {
	defer func() {
		h.hub.unregister(c)
		c.conn.Close()
		h.logger.Debug("websocket disconnected", "session_id", c.sessionID)
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "session_id", c.sessionID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var in Frame
		if err := json.Unmarshal(data, &in); err != nil {
			c.trySend(Frame{Type: "error", Error: "invalid frame"})
			continue
		}
		switch in.Type {
		case "ping":
			c.trySend(Frame{Type: "pong"})
		case "message":
			_, msgs, err := h.service.Send(c.ctx, c.sessionID, in.Text, TransportWebsocket)
			if err != nil {
				c.trySend(Frame{Type: "error", Error: err.Error()})
				if errors.Is(err, ErrSessionNotFound) {
					return
				}
				continue
			}
			h.hub.broadcast(c.sessionID, msgs)
		default:
			c.trySend(Frame{Type: "error", Error: "unknown frame type"})
		}
	}
}

func (h *Handler) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type wsClient struct {
	ctx       context.Context
	sessionID string
	conn      *websocket.Conn
	send      chan Frame

	mu     sync.Mutex
	closed bool
}

// trySend drops the frame when the client is gone or not keeping up.
func (c *wsClient) trySend(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// hub fans new messages out to every socket watching a session.
type hub struct {
	mu      sync.Mutex
	clients map[string]map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[string]map[*wsClient]struct{})}
}

func (h *hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	if set, ok := h.clients[c.sessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.sessionID)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (h *hub) broadcast(sessionID string, msgs []Message) {
	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients[sessionID]))
	for c := range h.clients[sessionID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		for i := range msgs {
			c.trySend(Frame{Type: "message", Message: &msgs[i]})
		}
	}
}

func (h *hub) closeSession(sessionID string) {
	h.mu.Lock()
	set := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()
	for c := range set {
		c.close()
	}
}
