package stats

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ashureev/worklog/internal/domain"
)

type fakeStore struct {
	dayTotals map[string]int64
	loc       *time.Location
	err       error
}

func (f *fakeStore) InsertInterval(context.Context, *domain.Interval) error { return nil }

func (f *fakeStore) DayTotal(_ context.Context, day time.Time) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	total, ok := f.dayTotals[domain.DayKey(day, f.loc)]
	return total, ok, nil
}

func (f *fakeStore) AverageDailyTotal(context.Context) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	if len(f.dayTotals) == 0 {
		return 0, false, nil
	}
	var sum int64
	for _, v := range f.dayTotals {
		sum += v
	}
	return float64(sum) / float64(len(f.dayTotals)), true, nil
}

func (f *fakeStore) MaxDailyTotal(context.Context) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	var highest int64
	for _, v := range f.dayTotals {
		if v > highest {
			highest = v
		}
	}
	return highest, len(f.dayTotals) > 0, nil
}

func (f *fakeStore) CountIntervals(context.Context) (int64, error) {
	return int64(len(f.dayTotals)), nil
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func TestDayChartFromFiftyMinutes(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	agg := NewAggregator(&fakeStore{dayTotals: map[string]int64{"2024-01-01": 3000}, loc: loc}, loc)

	day, _ := domain.ParseWireDate("2024-01-01", loc)
	chart, err := agg.DayChart(context.Background(), day)
	if err != nil {
		t.Fatalf("DayChart failed: %v", err)
	}
	if !approx(chart.WorkedHours, 0.833) {
		t.Fatalf("expected worked ~0.833, got %v", chart.WorkedHours)
	}
	if !approx(chart.RemainingHours, 11.167) {
		t.Fatalf("expected remaining ~11.167, got %v", chart.RemainingHours)
	}
}

func TestDayChartNoDataIsDistinctFromZero(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	agg := NewAggregator(&fakeStore{dayTotals: map[string]int64{"2024-01-01": 0}, loc: loc}, loc)

	day, _ := domain.ParseWireDate("2024-01-01", loc)
	chart, err := agg.DayChart(context.Background(), day)
	if err != nil {
		t.Fatalf("expected zero-hour chart, got %v", err)
	}
	if chart.WorkedHours != 0 || chart.RemainingHours != ReferenceWorkdayHours {
		t.Fatalf("unexpected chart: %+v", chart)
	}

	other, _ := domain.ParseWireDate("2024-01-02", loc)
	if _, err := agg.DayChart(context.Background(), other); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestRemainingHoursNeverNegative(t *testing.T) {
	t.Parallel()
	chart := NewDayChart(time.Time{}, 14*3600)
	if chart.RemainingHours != 0 {
		t.Fatalf("expected 0 remaining, got %v", chart.RemainingHours)
	}
}

func TestTodayUsesClock(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	agg := NewAggregator(&fakeStore{dayTotals: map[string]int64{"2024-03-05": 7200}, loc: loc}, loc).
		WithClock(func() time.Time { return time.Date(2024, 3, 5, 18, 0, 0, 0, loc) })

	chart, err := agg.Today(context.Background())
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if chart.WorkedHours != 2 {
		t.Fatalf("expected 2 hours, got %v", chart.WorkedHours)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	agg := NewAggregator(&fakeStore{dayTotals: map[string]int64{"2024-01-01": 3600, "2024-01-02": 7200}, loc: loc}, loc)

	sum, err := agg.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.AverageDailyHours != 1.5 || sum.MaxDailyHours != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	empty := NewAggregator(&fakeStore{loc: loc}, loc)
	sum, err = empty.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary on empty store failed: %v", err)
	}
	if sum.AverageDailyHours != 0 || sum.MaxDailyHours != 0 {
		t.Fatalf("expected zeros, got %+v", sum)
	}
}

func TestStoreFailureIsWrapped(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk on fire")
	agg := NewAggregator(&fakeStore{err: boom, loc: time.UTC}, time.UTC)

	if _, err := agg.AverageDailyHours(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, err := agg.Today(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
