// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/worklog/internal/domain"
)

var (
	// ErrInvalidRange is returned when an interval ends before it starts.
	ErrInvalidRange = errors.New("end time is before start time")
	// ErrDuplicateStart is returned when an interval with the same start already exists.
	ErrDuplicateStart = errors.New("an interval with this start time already exists")
)

// IntervalStore is the append-only interval log and its aggregation queries.
type IntervalStore interface {
	// InsertInterval persists a new interval, assigning an ID when empty.
	InsertInterval(ctx context.Context, interval *domain.Interval) error

	// DayTotal returns the summed duration in seconds of intervals starting on day.
	// found is false when no interval starts on that day.
	DayTotal(ctx context.Context, day time.Time) (seconds int64, found bool, err error)

	// AverageDailyTotal returns the mean per-day total in seconds over days with data.
	AverageDailyTotal(ctx context.Context) (seconds float64, found bool, err error)

	// MaxDailyTotal returns the largest per-day total in seconds.
	MaxDailyTotal(ctx context.Context) (seconds int64, found bool, err error)

	// CountIntervals returns the number of stored intervals.
	CountIntervals(ctx context.Context) (int64, error)
}

// SessionStore persists session snapshots so armed timers survive restarts.
type SessionStore interface {
	// GetSession retrieves a session snapshot. Returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpsertSession creates or replaces a session snapshot.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// ListSessions returns every stored snapshot, armed ones included.
	ListSessions(ctx context.Context) ([]*domain.Session, error)
}

// Repository defines everything the application persists.
type Repository interface {
	IntervalStore
	SessionStore

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
