// Package scheduler keeps at most one pending alarm per key and delivers
// alarms in fire-time order from a single loop goroutine.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handle identifies one scheduled alarm. Handles are never reused.
type Handle uint64

// Alarm is what the delivery callback receives when a pending alarm fires.
type Alarm[P any] struct {
	Key     string
	Handle  Handle
	FireAt  time.Time
	Payload P
}

// DeliverFunc receives fired alarms. It runs on the scheduler loop and must
// hand the alarm off rather than do blocking work.
type DeliverFunc[P any] func(Alarm[P])

// Scheduler holds one pending alarm per key.
type Scheduler[P any] struct {
	mu      sync.Mutex
	entries map[string]*entry[P]
	queue   alarmQueue[P]
	last    Handle
	deliver DeliverFunc[P]
	wake    chan struct{}
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a scheduler that hands fired alarms to deliver.
func New[P any](deliver DeliverFunc[P], logger *slog.Logger) *Scheduler[P] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler[P]{
		entries: make(map[string]*entry[P]),
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		now:     time.Now,
		logger:  logger,
	}
}

// SetDeliver replaces the delivery callback. Call before Start.
func (s *Scheduler[P]) SetDeliver(deliver DeliverFunc[P]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliver = deliver
}

// Schedule registers payload to fire after delay under key, replacing any
// pending alarm for key in the same critical section.
func (s *Scheduler[P]) Schedule(key string, delay time.Duration, payload P) Handle {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		heap.Remove(&s.queue, old.index)
	}
	s.last++
	e := &entry[P]{
		key:     key,
		handle:  s.last,
		fireAt:  s.now().Add(delay),
		payload: payload,
	}
	s.entries[key] = e
	heap.Push(&s.queue, e)
	s.mu.Unlock()

	s.signal()
	return e.handle
}

// Cancel removes the pending alarm for key. It reports whether one existed.
func (s *Scheduler[P]) Cancel(key string) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		heap.Remove(&s.queue, e.index)
	}
	s.mu.Unlock()

	if ok {
		s.signal()
	}
	return ok
}

// Pending returns the handle and fire time of the alarm pending for key.
func (s *Scheduler[P]) Pending(key string) (Handle, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return 0, time.Time{}, false
	}
	return e.handle, e.fireAt, true
}

// Len returns the number of pending alarms.
func (s *Scheduler[P]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start runs the delivery loop until ctx is cancelled.
func (s *Scheduler[P]) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scheduler[P]) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	s.logger.Info("Scheduler started")

	for {
		due, next := s.popDue()
		for _, a := range due {
			s.dispatch(a)
		}

		wait := time.Hour
		if !next.IsZero() {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down", "reason", ctx.Err(), "pending", s.Len())
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// popDue unregisters every alarm whose fire time has passed and returns them
// with the fire time of the next pending alarm. Once popped, an alarm can no
// longer be cancelled and will be delivered exactly once.
func (s *Scheduler[P]) popDue() ([]Alarm[P], time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []Alarm[P]
	for s.queue.Len() > 0 && !s.queue[0].fireAt.After(now) {
		e := heap.Pop(&s.queue).(*entry[P])
		delete(s.entries, e.key)
		due = append(due, Alarm[P]{Key: e.key, Handle: e.handle, FireAt: e.fireAt, Payload: e.payload})
	}
	if s.queue.Len() == 0 {
		return due, time.Time{}
	}
	return due, s.queue[0].fireAt
}

func (s *Scheduler[P]) dispatch(a Alarm[P]) {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()
	if deliver == nil {
		s.logger.Warn("Alarm fired with no delivery callback", "key", a.Key)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Alarm delivery panicked", "key", a.Key, "panic", r)
		}
	}()
	deliver(a)
}

func (s *Scheduler[P]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
