package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/identity"
	"github.com/go-chi/chi/v5"
)

// SessionReader returns the current state of a conversation.
type SessionReader interface {
	Snapshot(ctx context.Context, sessionID string) (domain.Session, error)
}

// SessionHandler exposes the caller's timer state.
type SessionHandler struct {
	sessions SessionReader
	loc      *time.Location
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionReader, loc *time.Location) *SessionHandler {
	if loc == nil {
		loc = time.Local
	}
	return &SessionHandler{sessions: sessions, loc: loc}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/session", h.GetSession)
}

type sessionResponse struct {
	SessionID        string `json:"session_id"`
	State            string `json:"state"`
	WorkAlarm        bool   `json:"work_alarm"`
	StartTime        string `json:"start_time,omitempty"`
	EndTime          string `json:"end_time,omitempty"`
	ConsecutiveCount int    `json:"consecutive_count"`
	Fired            bool   `json:"fired"`
}

// GetSession returns the timer state of the session named by the request.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		Reject(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}

	s, err := h.sessions.Snapshot(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("Failed to read session", "error", err, "session_id", sessionID)
		internalError(w)
		return
	}

	resp := sessionResponse{
		SessionID:        s.ID,
		State:            string(s.State),
		WorkAlarm:        s.WorkAlarm,
		ConsecutiveCount: s.ConsecutiveCount,
		Fired:            s.Fired,
	}
	if s.IsArmed() {
		resp.StartTime = domain.FormatWireTime(s.StartTime, h.loc)
		resp.EndTime = domain.FormatWireTime(s.EndTime, h.loc)
	}
	JSON(w, http.StatusOK, resp)
}
