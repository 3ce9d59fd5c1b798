package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/stats"
	"github.com/go-chi/chi/v5"
)

// StatsHandler serves the daily chart and the aggregate figures.
type StatsHandler struct {
	*Handler
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(base *Handler) *StatsHandler {
	return &StatsHandler{Handler: base}
}

// RegisterRoutes registers stats routes, including the historical paths.
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/day-chart-data", h.DayChartData)
		r.Get("/day-chart", h.DayChartImage)
		r.Get("/average-daily-hours", h.AverageDailyHours)
		r.Get("/highest-daily-hours", h.HighestDailyHours)

		r.Get("/get-disk-diagram-for-today", h.DayChartImage)
		r.Get("/average-work-time-per-day", h.AverageDailyHours)
		r.Get("/highest-score", h.HighestDailyHours)
	})
}

type dayChartResponse struct {
	Date           string  `json:"date"`
	WorkedHours    float64 `json:"worked_hours"`
	RemainingHours float64 `json:"remaining_hours"`
}

// DayChartData returns worked and remaining hours for ?date= (default today).
func (h *StatsHandler) DayChartData(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayChart(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, dayChartResponse{
		Date:           day.Date.Format(domain.WireDateLayout),
		WorkedHours:    day.WorkedHours,
		RemainingHours: day.RemainingHours,
	})
}

// DayChartImage renders the pie chart for ?date= (default today) as PNG.
func (h *StatsHandler) DayChartImage(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayChart(w, r)
	if !ok {
		return
	}
	png, err := h.chart.RenderDay(day)
	if err != nil {
		slog.Error("Failed to render day chart", "error", err)
		internalError(w)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		slog.Debug("Failed to write chart", "error", err)
	}
}

func (h *StatsHandler) dayChart(w http.ResponseWriter, r *http.Request) (stats.DayChart, bool) {
	date, err := h.requestDate(r)
	if err != nil {
		Reject(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD.")
		return stats.DayChart{}, false
	}
	day, err := h.stats.DayChart(r.Context(), date)
	if errors.Is(err, stats.ErrNoData) {
		JSON(w, http.StatusNotFound, map[string]string{"msg": "No data!"})
		return stats.DayChart{}, false
	}
	if err != nil {
		slog.Error("Failed to load day chart", "error", err, "date", date.Format(domain.WireDateLayout))
		internalError(w)
		return stats.DayChart{}, false
	}
	return day, true
}

func (h *StatsHandler) requestDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		now := h.now().In(h.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc), nil
	}
	return domain.ParseWireDate(raw, h.loc)
}

// AverageDailyHours returns the mean worked hours per day with data.
func (h *StatsHandler) AverageDailyHours(w http.ResponseWriter, r *http.Request) {
	avg, err := h.stats.AverageDailyHours(r.Context())
	if err != nil {
		slog.Error("Failed to compute average daily hours", "error", err)
		internalError(w)
		return
	}
	JSON(w, http.StatusOK, map[string]float64{"avg_day_work": avg})
}

// HighestDailyHours returns the largest daily total in hours.
func (h *StatsHandler) HighestDailyHours(w http.ResponseWriter, r *http.Request) {
	highest, err := h.stats.MaxDailyHours(r.Context())
	if err != nil {
		slog.Error("Failed to compute highest daily hours", "error", err)
		internalError(w)
		return
	}
	JSON(w, http.StatusOK, map[string]float64{"highest_score": highest})
}
