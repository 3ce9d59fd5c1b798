package domain

import (
	"time"
)

// SessionState is the timer state of a conversation.
type SessionState string

const (
	// SessionIdle means no timer is armed.
	SessionIdle SessionState = "idle"
	// SessionWorkArmed means a work timer is armed or ringing.
	SessionWorkArmed SessionState = "work_armed"
	// SessionBreakArmed means a break timer is armed or ringing.
	SessionBreakArmed SessionState = "break_armed"
)

// Session holds timer state for one conversation.
type Session struct {
	ID               string
	State            SessionState
	WorkAlarm        bool
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	ConsecutiveCount int
	Fired            bool
	UpdatedAt        time.Time
}

// NewSession returns an idle session for id.
func NewSession(id string) *Session {
	return &Session{ID: id, State: SessionIdle}
}

// IsArmed returns true if the session has a work or break timer running.
func (s Session) IsArmed() bool {
	return s.State == SessionWorkArmed || s.State == SessionBreakArmed
}

// Arm records a freshly armed timer starting at now.
func (s *Session) Arm(now time.Time, d time.Duration, work bool) {
	s.WorkAlarm = work
	s.StartTime = now
	s.EndTime = now.Add(d)
	s.Duration = d
	s.Fired = false
	if work {
		s.State = SessionWorkArmed
	} else {
		s.State = SessionBreakArmed
	}
}

// Reset returns the session to idle. The consecutive count is kept.
func (s *Session) Reset() {
	s.State = SessionIdle
	s.WorkAlarm = false
	s.Fired = false
}

// Remaining returns the time left until EndTime, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	d := s.EndTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
