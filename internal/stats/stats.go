// Package stats turns stored interval totals into hour-denominated figures.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ashureev/worklog/internal/store"
)

// ReferenceWorkdayHours is the length of the day worked time is charted against.
const ReferenceWorkdayHours = 12.0

// ErrNoData is returned when a day has no recorded intervals.
var ErrNoData = errors.New("no data")

// DayChart is the input of the daily pie chart.
type DayChart struct {
	Date           time.Time `json:"-"`
	WorkedHours    float64   `json:"worked_hours"`
	RemainingHours float64   `json:"remaining_hours"`
}

// Summary bundles the common stats reply.
type Summary struct {
	AverageDailyHours float64 `json:"avg_day_work"`
	MaxDailyHours     float64 `json:"highest_score"`
}

// Aggregator computes chart and stat values from an interval store.
type Aggregator struct {
	store store.IntervalStore
	loc   *time.Location
	now   func() time.Time
}

// NewAggregator creates an Aggregator. Dates are interpreted in loc.
func NewAggregator(s store.IntervalStore, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{store: s, loc: loc, now: time.Now}
}

// WithClock overrides the clock used for Today.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Location returns the reference zone.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// DayChart returns worked and remaining hours for date.
func (a *Aggregator) DayChart(ctx context.Context, date time.Time) (DayChart, error) {
	seconds, found, err := a.store.DayTotal(ctx, date)
	if err != nil {
		return DayChart{}, fmt.Errorf("day total: %w", err)
	}
	if !found {
		return DayChart{}, ErrNoData
	}
	return NewDayChart(date.In(a.loc), float64(seconds)), nil
}

// Today returns the chart input for the current date.
func (a *Aggregator) Today(ctx context.Context) (DayChart, error) {
	return a.DayChart(ctx, a.now().In(a.loc))
}

// AverageDailyHours returns the mean worked hours per day with data, 0 when empty.
func (a *Aggregator) AverageDailyHours(ctx context.Context) (float64, error) {
	seconds, found, err := a.store.AverageDailyTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("average daily total: %w", err)
	}
	if !found {
		return 0, nil
	}
	return seconds / 3600, nil
}

// MaxDailyHours returns the highest worked hours in a day, 0 when empty.
func (a *Aggregator) MaxDailyHours(ctx context.Context) (float64, error) {
	seconds, found, err := a.store.MaxDailyTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("max daily total: %w", err)
	}
	if !found {
		return 0, nil
	}
	return float64(seconds) / 3600, nil
}

// Summary returns the average and maximum together.
func (a *Aggregator) Summary(ctx context.Context) (Summary, error) {
	avg, err := a.AverageDailyHours(ctx)
	if err != nil {
		return Summary{}, err
	}
	highest, err := a.MaxDailyHours(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{AverageDailyHours: avg, MaxDailyHours: highest}, nil
}

// NewDayChart converts a day's worked seconds into chart input.
func NewDayChart(date time.Time, workedSeconds float64) DayChart {
	worked := workedSeconds / 3600
	return DayChart{
		Date:           date,
		WorkedHours:    worked,
		RemainingHours: math.Max(ReferenceWorkdayHours-worked, 0),
	}
}
