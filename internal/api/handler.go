// Package api provides HTTP handlers for the worklog API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/stats"
)

// IntervalRecorder persists intervals submitted over HTTP.
type IntervalRecorder interface {
	InsertInterval(ctx context.Context, interval *domain.Interval) error
}

// StatsService answers the chart and aggregate endpoints.
type StatsService interface {
	DayChart(ctx context.Context, date time.Time) (stats.DayChart, error)
	AverageDailyHours(ctx context.Context) (float64, error)
	MaxDailyHours(ctx context.Context) (float64, error)
}

// ChartRenderer renders the daily pie chart.
type ChartRenderer interface {
	RenderDay(day stats.DayChart) ([]byte, error)
}

// Handler provides common handler utilities.
type Handler struct {
	intervals IntervalRecorder
	stats     StatsService
	chart     ChartRenderer
	loc       *time.Location
	now       func() time.Time
}

// NewHandler creates a new Handler with common dependencies. Wire times and
// dates are read in loc.
func NewHandler(intervals IntervalRecorder, statsSvc StatsService, chart ChartRenderer, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		intervals: intervals,
		stats:     statsSvc,
		chart:     chart,
		loc:       loc,
		now:       time.Now,
	}
}

// WithClock overrides the clock used to resolve "today".
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Reject writes a client error carrying a machine-readable code and a
// human-readable message.
func Reject(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]string{"error": code, "msg": message})
}

// internalError is the body of every unexpected failure.
func internalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "An error occurred")
}
