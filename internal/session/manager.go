// Package session runs one actor goroutine per conversation. Each actor owns
// its session state and processes user events and fired alarms strictly one
// at a time, so no locking is needed around a session's fields.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/scheduler"
	"github.com/ashureev/worklog/internal/store"
)

const (
	defaultReminderInterval = 10 * time.Second
	defaultMailboxSize      = 32
	defaultStoreTimeout     = 10 * time.Second
	defaultIdleTTL          = 24 * time.Hour
	defaultSweepInterval    = 5 * time.Minute
)

var (
	// ErrNotStarted is returned when events are dispatched before Start.
	ErrNotStarted = errors.New("session manager not started")
	// ErrStopped is returned once the manager has shut down.
	ErrStopped = errors.New("session manager stopped")
	// ErrUnavailable is returned when an actor keeps retiring under a dispatch.
	ErrUnavailable = errors.New("session actor unavailable")
)

// Config holds the collaborators and tunables of a Manager.
type Config struct {
	Notifier Notifier
	Recorder Recorder
	Stats    StatsSource
	Chart    ChartRenderer
	// Sessions is optional. When set, snapshots are written after every
	// transition and read back when an actor starts.
	Sessions store.SessionStore
	Presets  *PresetTable
	Location *time.Location
	Logger   *slog.Logger

	ReminderInterval time.Duration
	MailboxSize      int
	StoreTimeout     time.Duration
	IdleTTL          time.Duration
	SweepInterval    time.Duration

	Now func() time.Time
}

// Manager routes events to session actors and owns the alarm scheduler.
type Manager struct {
	cfg    Config
	sched  *scheduler.Scheduler[AlarmPayload]
	logger *slog.Logger

	mu     sync.Mutex
	actors map[string]*actor
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager validates cfg and creates a Manager. Call Start before dispatching.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Notifier == nil || cfg.Recorder == nil || cfg.Stats == nil || cfg.Chart == nil {
		return nil, errors.New("session: notifier, recorder, stats and chart are required")
	}
	if cfg.Presets == nil {
		cfg.Presets = DefaultPresets()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = defaultReminderInterval
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "session"),
		actors: make(map[string]*actor),
	}
	m.sched = scheduler.New[AlarmPayload](m.deliverAlarm, cfg.Logger.With("component", "scheduler"))
	return m, nil
}

// Start launches the scheduler and the idle sweeper. Actors live until ctx
// is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.base, m.cancel = context.WithCancel(ctx)
	base := m.base
	m.mu.Unlock()

	m.sched.Start(base)
	StartIdleSweeper(base, m, m.cfg.SweepInterval)
}

// Stop cancels every actor and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Dispatch queues a user event for sessionID. It blocks while the session's
// mailbox is full.
func (m *Manager) Dispatch(ctx context.Context, sessionID string, ev Event) error {
	return m.send(ctx, sessionID, envelope{kind: kindUser, event: ev})
}

// Snapshot returns a copy of the session state as its actor sees it.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (domain.Session, error) {
	reply := make(chan domain.Session, 1)
	if err := m.send(ctx, sessionID, envelope{kind: kindSnapshot, reply: reply}); err != nil {
		return domain.Session{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return domain.Session{}, ctx.Err()
	}
}

// Restore re-arms every persisted session that was armed at shutdown.
// Alarms whose end time already passed fire immediately.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.cfg.Sessions == nil {
		return 0, nil
	}
	sessions, err := m.cfg.Sessions.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	restored := 0
	for _, s := range sessions {
		if !s.IsArmed() {
			continue
		}
		if err := m.send(ctx, s.ID, envelope{kind: kindRestore}); err != nil {
			return restored, fmt.Errorf("restore session %s: %w", s.ID, err)
		}
		restored++
	}
	m.logger.Info("Restored armed sessions", "count", restored)
	return restored, nil
}

// ActiveCount returns the number of live actors.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actors)
}

// PendingAlarms returns the number of alarms waiting in the scheduler.
func (m *Manager) PendingAlarms() int {
	return m.sched.Len()
}

func (m *Manager) send(ctx context.Context, sessionID string, env envelope) error {
	for attempt := 0; attempt < 3; attempt++ {
		a, base, err := m.actorFor(sessionID)
		if err != nil {
			return err
		}
		ok, err := a.enqueue(ctx, base, env)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrUnavailable
}

// actorFor returns the live actor for id, starting one if needed.
func (m *Manager) actorFor(id string) (*actor, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.base == nil {
		return nil, nil, ErrNotStarted
	}
	if m.base.Err() != nil {
		return nil, nil, ErrStopped
	}
	if a, ok := m.actors[id]; ok {
		return a, m.base, nil
	}
	a := newActor(m, id)
	m.actors[id] = a
	m.wg.Add(1)
	go a.run(m.base)
	return a, m.base, nil
}

// retire removes a from the registry if it is still the registered actor.
func (m *Manager) retire(a *actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.actors[a.id] == a {
		delete(m.actors, a.id)
	}
}

// deliverAlarm runs on the scheduler loop. It never blocks: the actor's
// alarm slot holds only the newest fire.
func (m *Manager) deliverAlarm(al scheduler.Alarm[AlarmPayload]) {
	for attempt := 0; attempt < 3; attempt++ {
		a, _, err := m.actorFor(al.Key)
		if err != nil {
			m.logger.Debug("Dropping alarm", "session_id", al.Key, "reason", err)
			return
		}
		if a.offerAlarm(al) {
			return
		}
	}
	m.logger.Warn("Dropping alarm after actor retired repeatedly", "session_id", al.Key)
}

// sweepIdle asks every actor to retire if it has been idle longer than the TTL.
func (m *Manager) sweepIdle() {
	m.mu.Lock()
	actors := make([]*actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.mu.Unlock()

	for _, a := range actors {
		a.tryPost(envelope{kind: kindEvict})
	}
}
