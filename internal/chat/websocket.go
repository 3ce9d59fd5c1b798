package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/worklog/internal/identity"
	"github.com/ashureev/worklog/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Dispatcher receives parsed client actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, ev session.Event) error
}

// WebSocketHandler serves the chat endpoint of one session per connection.
type WebSocketHandler struct {
	hub            *Hub
	sessions       Dispatcher
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, sessions Dispatcher, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		sessions:       sessions,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// inbound is one client action.
type inbound struct {
	Action string `json:"action"`
	Choice string `json:"choice,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.hub.Register(sessionID, ws)
	defer h.hub.Unregister(sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.writeFrame(ctx, ws, Frame{Type: "hello", SessionID: sessionID}); err != nil {
		slog.Debug("Failed to send hello", "error", err, "session_id", sessionID)
		return
	}
	if err := h.hub.Replay(ctx, sessionID, ws); err != nil {
		slog.Debug("Failed to replay backlog", "error", err, "session_id", sessionID)
		return
	}

	h.inputLoop(ctx, ws, sessionID)
	slog.Info("Chat session ended", "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(ctx, ws, "invalid_message")
			continue
		}

		if msg.Action == "ping" {
			if err := h.writeFrame(ctx, ws, Frame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
			continue
		}

		ev, ok := session.ParseEvent(msg.Action, msg.Choice)
		if !ok {
			h.sendError(ctx, ws, "unknown_action")
			continue
		}

		if err := h.sessions.Dispatch(ctx, sessionID, ev); err != nil {
			slog.Warn("Failed to dispatch action", "error", err, "session_id", sessionID, "action", ev.Action)
			h.sendError(ctx, ws, "session_unavailable")
		}
	}
}

func (h *WebSocketHandler) sendError(ctx context.Context, ws *websocket.Conn, code string) {
	if err := h.writeFrame(ctx, ws, Frame{Type: "error", Error: code}); err != nil {
		slog.Debug("Failed to send error frame", "error", err, "code", code)
	}
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, f)
}
