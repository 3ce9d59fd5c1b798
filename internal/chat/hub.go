// Package chat carries session replies to WebSocket clients and client
// actions to the session manager.
package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/worklog/internal/session"
	"github.com/coder/websocket"
)

// ErrNotConnected is returned when a session has no live connection. The
// frame is kept in the session's backlog and replayed on reconnect.
var ErrNotConnected = errors.New("session has no active connection")

const writeTimeout = 5 * time.Second

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Frame is one outbound message.
type Frame struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Text      string           `json:"text,omitempty"`
	Choices   []session.Choice `json:"choices,omitempty"`
	Mime      string           `json:"mime,omitempty"`
	Data      string           `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Hub tracks the live connection of each session. A session has at most one
// connection; a new one replaces the old.
type Hub struct {
	mu          sync.RWMutex
	active      map[string]Conn
	backlog     map[string]*frameRing
	backlogSize int
	now         func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active:      make(map[string]Conn),
		backlog:     make(map[string]*frameRing),
		backlogSize: defaultBacklogSize,
		now:         time.Now,
	}
}

// GetActive returns the connection of a session, or nil.
func (h *Hub) GetActive(sessionID string) Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active[sessionID]
}

// Register adds conn for sessionID, closing any connection it replaces.
func (h *Hub) Register(sessionID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.active[sessionID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.active[sessionID] = conn
	slog.Info("Chat session registered", "session_id", sessionID)
}

// Unregister removes conn if it is still the session's connection.
func (h *Hub) Unregister(sessionID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.active[sessionID]; ok && current == conn {
		delete(h.active, sessionID)
		slog.Info("Chat session unregistered", "session_id", sessionID)
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sid, conn := range h.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.active, sid)
	}
}

// SendMessage implements session.Notifier.
func (h *Hub) SendMessage(ctx context.Context, sessionID string, msg session.Message) error {
	return h.send(ctx, sessionID, Frame{Type: "message", Text: msg.Text, Choices: msg.Choices})
}

// SendImage implements session.Notifier. The image travels base64 encoded.
func (h *Hub) SendImage(ctx context.Context, sessionID string, png []byte) error {
	return h.send(ctx, sessionID, Frame{
		Type: "image",
		Mime: "image/png",
		Data: base64.StdEncoding.EncodeToString(png),
	})
}

func (h *Hub) send(ctx context.Context, sessionID string, f Frame) error {
	// The lookup and the hold share one critical section so a frame can
	// never be held after Register has made the connection visible.
	h.mu.Lock()
	conn := h.active[sessionID]
	if conn == nil {
		h.holdLocked(sessionID, f)
		h.mu.Unlock()
		return ErrNotConnected
	}
	h.mu.Unlock()

	if err := writeFrame(ctx, conn, f); err != nil {
		return fmt.Errorf("send %s to %s: %w", f.Type, sessionID, err)
	}
	return nil
}

// holdLocked must be called with h.mu held.
func (h *Hub) holdLocked(sessionID string, f Frame) {
	ring, ok := h.backlog[sessionID]
	if !ok {
		if len(h.backlog) >= maxBacklogSessions {
			slog.Warn("Chat backlog full, dropping frame", "session_id", sessionID, "type", f.Type)
			return
		}
		ring = newFrameRing(h.backlogSize)
		h.backlog[sessionID] = ring
	}
	ring.push(queuedFrame{frame: f, at: h.now()})
}

// Pending returns the number of frames held for sessionID.
func (h *Hub) Pending(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ring, ok := h.backlog[sessionID]; ok {
		return ring.len()
	}
	return 0
}

// Replay writes the frames held while sessionID was offline to conn,
// oldest first. Frames older than an hour are discarded.
func (h *Hub) Replay(ctx context.Context, sessionID string, conn Conn) error {
	h.mu.Lock()
	ring, ok := h.backlog[sessionID]
	delete(h.backlog, sessionID)
	h.mu.Unlock()
	if !ok {
		return nil
	}

	cutoff := h.now().Add(-backlogTTL)
	for _, q := range ring.drain() {
		if q.at.Before(cutoff) {
			continue
		}
		if err := writeFrame(ctx, conn, q.frame); err != nil {
			return fmt.Errorf("replay to %s: %w", sessionID, err)
		}
	}
	return nil
}

func writeFrame(ctx context.Context, conn Conn, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var _ session.Notifier = (*Hub)(nil)
