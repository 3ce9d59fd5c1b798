//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/worklog/internal/chart"
	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/identity"
	"github.com/ashureev/worklog/internal/stats"
	"github.com/ashureev/worklog/internal/store"
	"github.com/go-chi/chi/v5"
)

type fakeRecorder struct {
	mu        sync.Mutex
	intervals []domain.Interval
	err       error
}

func (f *fakeRecorder) InsertInterval(_ context.Context, interval *domain.Interval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.intervals = append(f.intervals, *interval)
	return nil
}

type fakeStats struct {
	day     stats.DayChart
	dayErr  error
	asked   time.Time
	avg     float64
	highest float64
	err     error
}

func (f *fakeStats) DayChart(_ context.Context, date time.Time) (stats.DayChart, error) {
	f.asked = date
	return f.day, f.dayErr
}

func (f *fakeStats) AverageDailyHours(context.Context) (float64, error) { return f.avg, f.err }

func (f *fakeStats) MaxDailyHours(context.Context) (float64, error) { return f.highest, f.err }

type fakeChart struct{ err error }

func (f fakeChart) RenderDay(stats.DayChart) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG"), nil
}

var testLoc = time.FixedZone("ref", 2*60*60)

func newRouter(t *testing.T, rec IntervalRecorder, st StatsService, ch ChartRenderer) http.Handler {
	t.Helper()
	base := NewHandler(rec, st, ch, testLoc).WithClock(func() time.Time {
		return time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	})
	intervals, err := NewIntervalHandler(base)
	if err != nil {
		t.Fatalf("NewIntervalHandler failed: %v", err)
	}
	r := chi.NewRouter()
	intervals.RegisterRoutes(r)
	NewStatsHandler(base).RegisterRoutes(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestSaveWork(t *testing.T) {
	rec := &fakeRecorder{}
	h := newRouter(t, rec, &fakeStats{}, fakeChart{})

	w := do(h, http.MethodPost, "/api/save-work", `{"start_time":"2024-03-10 09:00:00","end_time":"2024-03-10 09:50:00","type":"work"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w); got["msg"] != "Saved!" {
		t.Errorf("Unexpected body: %v", got)
	}

	if len(rec.intervals) != 1 {
		t.Fatalf("Expected one interval, got %d", len(rec.intervals))
	}
	iv := rec.intervals[0]
	if iv.Duration() != 50*time.Minute || iv.Type != domain.IntervalWork {
		t.Errorf("Unexpected interval: %+v", iv)
	}
	if iv.StartTime.Location() != testLoc {
		t.Errorf("Expected start time in reference zone, got %v", iv.StartTime.Location())
	}
}

func TestSaveWorkDefaultsToWork(t *testing.T) {
	rec := &fakeRecorder{}
	h := newRouter(t, rec, &fakeStats{}, fakeChart{})

	w := do(h, http.MethodPost, "/api/save-work", `{"start_time":"2024-03-10 09:00:00","end_time":"2024-03-10 09:00:00"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if rec.intervals[0].Type != domain.IntervalWork {
		t.Errorf("Expected work type, got %s", rec.intervals[0].Type)
	}
}

func TestSaveWorkRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `start=now`},
		{"missing end", `{"start_time":"2024-03-10 09:00:00"}`},
		{"bad format", `{"start_time":"2024-03-10T09:00:00Z","end_time":"2024-03-10 09:50:00"}`},
		{"bad type", `{"start_time":"2024-03-10 09:00:00","end_time":"2024-03-10 09:50:00","type":"nap"}`},
		{"extra field", `{"start_time":"2024-03-10 09:00:00","end_time":"2024-03-10 09:50:00","user":"x"}`},
		{"impossible date", `{"start_time":"2024-13-40 09:00:00","end_time":"2024-03-10 09:50:00"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			h := newRouter(t, rec, &fakeStats{}, fakeChart{})
			w := do(h, http.MethodPost, "/api/save-work", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if got := decode(t, w); got["error"] != "invalid_request" {
				t.Errorf("Expected invalid_request, got %v", got)
			}
			if len(rec.intervals) != 0 {
				t.Error("Nothing should be recorded")
			}
		})
	}
}

func TestSaveWorkStoreErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrInvalidRange, http.StatusBadRequest, "invalid_range"},
		{store.ErrDuplicateStart, http.StatusBadRequest, "duplicate_start"},
		{errors.New("disk full"), http.StatusInternalServerError, "An error occurred"},
	}

	for _, tt := range tests {
		h := newRouter(t, &fakeRecorder{err: tt.err}, &fakeStats{}, fakeChart{})
		w := do(h, http.MethodPost, "/api/save-work", `{"start_time":"2024-03-10 09:00:00","end_time":"2024-03-10 09:50:00"}`)
		if w.Code != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, w.Code)
		}
		if got := decode(t, w); got["error"] != tt.code {
			t.Errorf("%v: expected %q, got %v", tt.err, tt.code, got)
		}
	}
}

func TestDayChartData(t *testing.T) {
	st := &fakeStats{day: stats.NewDayChart(time.Date(2024, 3, 11, 0, 0, 0, 0, testLoc), 3000)}
	h := newRouter(t, &fakeRecorder{}, st, fakeChart{})

	w := do(h, http.MethodGet, "/api/day-chart-data", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	// 23:30 UTC is already the next day in the reference zone.
	if got := st.asked.Format(domain.WireDateLayout); got != "2024-03-11" {
		t.Errorf("Expected today to resolve to 2024-03-11, got %s", got)
	}
	got := decode(t, w)
	if got["date"] != "2024-03-11" || got["worked_hours"].(float64) < 0.83 || got["remaining_hours"].(float64) < 11.16 {
		t.Errorf("Unexpected body: %v", got)
	}

	w = do(h, http.MethodGet, "/api/day-chart-data?date=2024-01-05", "")
	if w.Code != http.StatusOK || st.asked.Format(domain.WireDateLayout) != "2024-01-05" {
		t.Errorf("Expected explicit date to be used, got %d %v", w.Code, st.asked)
	}
}

func TestDayChartErrors(t *testing.T) {
	h := newRouter(t, &fakeRecorder{}, &fakeStats{dayErr: stats.ErrNoData}, fakeChart{})

	w := do(h, http.MethodGet, "/api/day-chart-data", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	if got := decode(t, w); got["msg"] != "No data!" {
		t.Errorf("Unexpected body: %v", got)
	}

	w = do(h, http.MethodGet, "/api/day-chart-data?date=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad date, got %d", w.Code)
	}

	w = do(h, http.MethodGet, "/api/day-chart", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 chart without data, got %d", w.Code)
	}
}

func TestDayChartImage(t *testing.T) {
	st := &fakeStats{day: stats.NewDayChart(time.Date(2024, 3, 11, 0, 0, 0, 0, testLoc), 3600)}

	for _, path := range []string{"/api/day-chart", "/api/get-disk-diagram-for-today"} {
		w := do(newRouter(t, &fakeRecorder{}, st, fakeChart{}), http.MethodGet, path, "")
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
			t.Errorf("%s: expected PNG, got %d %q", path, w.Code, w.Header().Get("Content-Type"))
		}
	}

	w := do(newRouter(t, &fakeRecorder{}, st, fakeChart{err: errors.New("boom")}), http.MethodGet, "/api/day-chart", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on render failure, got %d", w.Code)
	}
}

func TestAggregateEndpoints(t *testing.T) {
	h := newRouter(t, &fakeRecorder{}, &fakeStats{avg: 1.5, highest: 7.25}, fakeChart{})

	if got := decode(t, do(h, http.MethodGet, "/api/average-daily-hours", "")); got["avg_day_work"] != 1.5 {
		t.Errorf("Unexpected average: %v", got)
	}
	if got := decode(t, do(h, http.MethodGet, "/api/highest-daily-hours", "")); got["highest_score"] != 7.25 {
		t.Errorf("Unexpected highest: %v", got)
	}

	h = newRouter(t, &fakeRecorder{}, &fakeStats{err: errors.New("boom")}, fakeChart{})
	if w := do(h, http.MethodGet, "/api/highest-score", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestSaveThenChartAgainstSQLite(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "worklog.db"), testLoc)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	h := newRouter(t, repo, stats.NewAggregator(repo, testLoc), chart.NewRenderer())

	body := `{"start_time":"2024-03-10 09:00:00","end_time":"2024-03-10 10:30:00","type":"work"}`
	if w := do(h, http.MethodPost, "/api/save-work", body); w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w := do(h, http.MethodPost, "/api/save-work", body)
	if got := decode(t, w); w.Code != http.StatusBadRequest || got["error"] != "duplicate_start" {
		t.Fatalf("Expected duplicate_start, got %d %v", w.Code, got)
	}

	got := decode(t, do(h, http.MethodGet, "/api/day-chart-data?date=2024-03-10", ""))
	if got["worked_hours"] != 1.5 || got["remaining_hours"] != 10.5 {
		t.Errorf("Unexpected chart data: %v", got)
	}
	if w := do(h, http.MethodGet, "/api/day-chart?date=2024-03-10", ""); w.Code != http.StatusOK {
		t.Errorf("Expected chart image, got %d", w.Code)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	r := chi.NewRouter()
	NewHealthHandler(fakePinger{}, 0).RegisterHealth(r)
	if w := do(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	r = chi.NewRouter()
	NewHealthHandler(fakePinger{err: errors.New("closed")}, time.Second).RegisterHealth(r)
	w := do(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
	if got := decode(t, w); got["status"] != "degraded" {
		t.Errorf("Unexpected body: %v", got)
	}
}

type fakeSessions struct {
	session domain.Session
	err     error
}

func (f fakeSessions) Snapshot(_ context.Context, id string) (domain.Session, error) {
	s := f.session
	s.ID = id
	return s, f.err
}

func TestGetSession(t *testing.T) {
	armed := domain.Session{ConsecutiveCount: 2}
	armed.Arm(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC), 50*time.Minute, true)

	r := chi.NewRouter()
	r.Use(identity.Middleware(false))
	NewSessionHandler(fakeSessions{session: armed}, testLoc).RegisterRoutes(r)

	w := do(r, http.MethodGet, "/api/session?session_id=chat-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	got := decode(t, w)
	if got["session_id"] != "chat-1" || got["state"] != "work_armed" || got["consecutive_count"] != 2.0 {
		t.Errorf("Unexpected body: %v", got)
	}
	if got["start_time"] != "2024-03-10 09:00:00" || got["end_time"] != "2024-03-10 09:50:00" {
		t.Errorf("Expected wire times in reference zone, got %v / %v", got["start_time"], got["end_time"])
	}

	r = chi.NewRouter()
	r.Use(identity.Middleware(false))
	NewSessionHandler(fakeSessions{err: errors.New("stopped")}, testLoc).RegisterRoutes(r)
	if w := do(r, http.MethodGet, "/api/session?session_id=chat-1", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}
