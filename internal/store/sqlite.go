package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	loc   *time.Location
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository. Days are bucketed in loc.
func NewSQLite(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers anyway; one connection keeps transactions simple.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, loc: loc, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS intervals (
		id TEXT PRIMARY KEY,
		start_at INTEGER NOT NULL,
		end_at INTEGER NOT NULL,
		day TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		CHECK (end_at >= start_at)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_intervals_start ON intervals(start_at);
	CREATE INDEX IF NOT EXISTS idx_intervals_day ON intervals(day);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		work_alarm INTEGER NOT NULL DEFAULT 0,
		start_at INTEGER,
		end_at INTEGER,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		consecutive_count INTEGER NOT NULL DEFAULT 0,
		fired INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// InsertInterval persists a new interval inside a transaction.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) InsertInterval(ctx context.Context, interval *domain.Interval) error {
	if !interval.HasValidRange() {
		return ErrInvalidRange
	}
	if !interval.Type.Valid() {
		return fmt.Errorf("insert interval: unknown type %q", interval.Type)
	}

	id := interval.ID
	if id == "" {
		id = uuid.NewString()
	}

	err := shared.RetryOnConflict(ctx, s.retry, "insert interval", func() error {
		return s.insertIntervalOnce(ctx, id, interval)
	})
	if err != nil {
		return err
	}
	interval.ID = id
	return nil
}

func (s *SQLiteStore) insertIntervalOnce(ctx context.Context, id string, interval *domain.Interval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert interval: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back interval insert", "error", rbErr)
		}
	}()

	startAt := interval.StartTime.Unix()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM intervals WHERE start_at = ?`, startAt).Scan(&exists)
	if err == nil {
		return ErrDuplicateStart
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check duplicate start: %w", err)
	}

	query := `
	INSERT INTO intervals (id, start_at, end_at, day, start_time, end_time, type, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		id, startAt, interval.EndTime.Unix(),
		domain.DayKey(interval.StartTime, s.loc),
		domain.FormatWireTime(interval.StartTime, s.loc),
		domain.FormatWireTime(interval.EndTime, s.loc),
		string(interval.Type), time.Now().Unix(),
	)
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return ErrDuplicateStart
		}
		return fmt.Errorf("insert interval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit interval: %w", err)
	}
	return nil
}

// DayTotal returns the summed duration of intervals starting on day.
func (s *SQLiteStore) DayTotal(ctx context.Context, day time.Time) (int64, bool, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(end_at - start_at), 0) FROM intervals WHERE day = ?`

	var count, total int64
	if err := s.db.QueryRowContext(ctx, query, domain.DayKey(day, s.loc)).Scan(&count, &total); err != nil {
		return 0, false, fmt.Errorf("query day total: %w", err)
	}
	return total, count > 0, nil
}

// AverageDailyTotal returns the mean per-day total over days with data.
func (s *SQLiteStore) AverageDailyTotal(ctx context.Context) (float64, bool, error) {
	query := `
	SELECT AVG(total) FROM (
		SELECT SUM(end_at - start_at) AS total FROM intervals GROUP BY day
	)`

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query).Scan(&avg); err != nil {
		return 0, false, fmt.Errorf("query average daily total: %w", err)
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

// MaxDailyTotal returns the largest per-day total.
func (s *SQLiteStore) MaxDailyTotal(ctx context.Context) (int64, bool, error) {
	query := `
	SELECT MAX(total) FROM (
		SELECT SUM(end_at - start_at) AS total FROM intervals GROUP BY day
	)`

	var highest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&highest); err != nil {
		return 0, false, fmt.Errorf("query max daily total: %w", err)
	}
	if !highest.Valid {
		return 0, false, nil
	}
	return highest.Int64, true, nil
}

// CountIntervals returns the number of stored intervals.
func (s *SQLiteStore) CountIntervals(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intervals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count intervals: %w", err)
	}
	return n, nil
}

// GetSession retrieves a session snapshot.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, state, work_alarm, start_at, end_at, duration_ms,
		       consecutive_count, fired, updated_at
		FROM sessions WHERE session_id = ?`

	session, err := s.scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// UpsertSession creates or replaces a session snapshot.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (
		session_id, state, work_alarm, start_at, end_at, duration_ms,
		consecutive_count, fired, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = excluded.state,
		work_alarm = excluded.work_alarm,
		start_at = excluded.start_at,
		end_at = excluded.end_at,
		duration_ms = excluded.duration_ms,
		consecutive_count = excluded.consecutive_count,
		fired = excluded.fired,
		updated_at = excluded.updated_at`

	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return shared.RetryOnConflict(ctx, s.retry, "upsert session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, string(session.State), session.WorkAlarm,
			nullableMillis(session.StartTime), nullableMillis(session.EndTime),
			session.Duration.Milliseconds(), session.ConsecutiveCount,
			session.Fired, updatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// ListSessions returns every stored session snapshot.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT session_id, state, work_alarm, start_at, end_at, duration_ms,
		       consecutive_count, fired, updated_at
		FROM sessions ORDER BY session_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := s.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var state string
	var startAt, endAt sql.NullInt64
	var durationMs, updatedAt int64

	err := row.Scan(
		&session.ID, &state, &session.WorkAlarm, &startAt, &endAt, &durationMs,
		&session.ConsecutiveCount, &session.Fired, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.State = domain.SessionState(state)
	if startAt.Valid {
		session.StartTime = time.UnixMilli(startAt.Int64).In(s.loc)
	}
	if endAt.Valid {
		session.EndTime = time.UnixMilli(endAt.Int64).In(s.loc)
	}
	session.Duration = time.Duration(durationMs) * time.Millisecond
	session.UpdatedAt = time.UnixMilli(updatedAt).In(s.loc)
	return &session, nil
}

func nullableMillis(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

var _ Repository = (*SQLiteStore)(nil)
