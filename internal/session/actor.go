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
	"github.com/ashureev/worklog/internal/stats"
	"github.com/ashureev/worklog/internal/store"
)

type envelopeKind int

const (
	kindUser envelopeKind = iota
	kindSnapshot
	kindRestore
	kindEvict
)

type envelope struct {
	kind  envelopeKind
	event Event
	reply chan domain.Session
}

// actor owns one session. Every field below mu is touched only by the run
// goroutine.
type actor struct {
	id     string
	m      *Manager
	logger *slog.Logger

	mailbox chan envelope
	// alarms holds at most the newest fired alarm. Only the scheduler loop
	// sends on it.
	alarms chan scheduler.Alarm[AlarmPayload]

	// mu guards closed. Senders hold it for reading while they enqueue so a
	// retiring actor never strands a message.
	mu     sync.RWMutex
	closed bool

	session    *domain.Session
	pending    scheduler.Handle
	lastActive time.Time
}

func newActor(m *Manager, id string) *actor {
	return &actor{
		id:      id,
		m:       m,
		logger:  m.logger.With("session_id", id),
		mailbox: make(chan envelope, m.cfg.MailboxSize),
		alarms:  make(chan scheduler.Alarm[AlarmPayload], 1),
		session: domain.NewSession(id),
	}
}

// enqueue reports false when the actor retired and the caller should look
// up a fresh one.
func (a *actor) enqueue(ctx, base context.Context, env envelope) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false, nil
	}
	select {
	case a.mailbox <- env:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-base.Done():
		return false, ErrStopped
	}
}

// tryPost enqueues env unless the mailbox is full or the actor retired.
func (a *actor) tryPost(env envelope) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.mailbox <- env:
	default:
	}
}

// offerAlarm stores al in the alarm slot, dropping an unprocessed older fire.
// The dropped fire is always stale: the only way a newer alarm for this key
// exists is that the actor already re-armed past it.
func (a *actor) offerAlarm(al scheduler.Alarm[AlarmPayload]) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	for {
		select {
		case a.alarms <- al:
			return true
		default:
		}
		select {
		case <-a.alarms:
		default:
		}
	}
}

func (a *actor) run(ctx context.Context) {
	defer a.m.wg.Done()
	a.load(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-a.mailbox:
			if a.handle(ctx, env) {
				a.logger.Debug("Session actor retired")
				return
			}
		case al := <-a.alarms:
			a.guard(func() { a.onAlarmFire(ctx, al) })
		}
	}
}

func (a *actor) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Session transition panicked", "panic", r)
		}
	}()
	fn()
}

// handle processes one envelope and reports whether the actor retired.
func (a *actor) handle(ctx context.Context, env envelope) bool {
	switch env.kind {
	case kindUser:
		a.lastActive = a.m.cfg.Now()
		a.guard(func() { a.onEvent(ctx, env.event) })
	case kindSnapshot:
		env.reply <- *a.session
	case kindRestore:
		a.rearm()
	case kindEvict:
		return a.tryRetire()
	}
	return false
}

func (a *actor) load(ctx context.Context) {
	a.lastActive = a.m.cfg.Now()
	if a.m.cfg.Sessions == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, a.m.cfg.StoreTimeout)
	defer cancel()
	s, err := a.m.cfg.Sessions.GetSession(sctx, a.id)
	if err != nil {
		a.logger.Warn("Failed to load session snapshot, starting idle", "error", err)
		return
	}
	if s != nil {
		a.session = s
		a.rearm()
	}
}

// rearm schedules the alarm of a session that is armed but has none pending,
// which happens after a restart.
func (a *actor) rearm() {
	if !a.session.IsArmed() || a.pending != 0 {
		return
	}
	if a.session.Fired {
		a.scheduleReminder()
	} else {
		a.pending = a.m.sched.Schedule(a.id, a.session.Remaining(a.m.cfg.Now()), AlarmPayload{Duration: a.session.Duration})
	}
	a.logger.Info("Re-armed session", "state", a.session.State, "end_time", a.session.EndTime)
}

func (a *actor) tryRetire() bool {
	if a.session.IsArmed() || a.pending != 0 {
		return false
	}
	if a.m.cfg.Now().Sub(a.lastActive) < a.m.cfg.IdleTTL {
		return false
	}
	if !a.mu.TryLock() {
		return false
	}
	defer a.mu.Unlock()
	if len(a.mailbox) > 0 || len(a.alarms) > 0 {
		return false
	}
	a.closed = true
	a.m.retire(a)
	return true
}

func (a *actor) onEvent(ctx context.Context, ev Event) {
	switch ev.Action {
	case ActionStart:
		a.reply(ctx, Message{Text: "Hi!", Choices: MainMenu})
	case ActionStartWork:
		a.reply(ctx, Message{Text: "Select a duration:", Choices: a.m.cfg.Presets.Choices(RoleWork)})
	case ActionStartBreak:
		a.reply(ctx, Message{Text: "Select break duration:", Choices: a.m.cfg.Presets.Choices(RoleBreak)})
	case ActionSelect:
		a.selectPreset(ctx, ev.Choice)
	case ActionStopWork:
		a.stopWork(ctx)
	case ActionStopAlarm:
		a.stopAlarm(ctx)
	case ActionCancel:
		a.cancelTimer(ctx)
	case ActionStats:
		a.sendStats(ctx)
	case ActionToday:
		a.sendToday(ctx)
	default:
		a.logger.Warn("Ignoring unknown action", "action", ev.Action)
	}
}

func (a *actor) selectPreset(ctx context.Context, id string) {
	p, ok := a.m.cfg.Presets.Lookup(id)
	if !ok {
		a.reply(ctx, Message{Text: "Unknown choice."})
		return
	}
	a.session.ConsecutiveCount = p.Apply(a.session.ConsecutiveCount)
	a.armTimer(ctx, p.Duration, p.Role == RoleWork)
}

// armTimer replaces whatever alarm the session had with a fresh one.
func (a *actor) armTimer(ctx context.Context, d time.Duration, work bool) {
	now := a.m.cfg.Now()
	a.pending = a.m.sched.Schedule(a.id, d, AlarmPayload{Duration: d})
	a.session.Arm(now, d, work)
	a.persist(ctx)

	kind := "Break"
	if work {
		kind = "Work"
	}
	a.reply(ctx, Message{Text: fmt.Sprintf("%s alarm started. It will end at %s.",
		kind, domain.FormatWireTime(a.session.EndTime, a.m.cfg.Location))})
	a.logger.Info("Timer armed", "work", work, "duration", d, "consecutive", a.session.ConsecutiveCount)
}

func (a *actor) onAlarmFire(ctx context.Context, al scheduler.Alarm[AlarmPayload]) {
	if a.pending == 0 || al.Handle != a.pending {
		a.logger.Debug("Dropping stale alarm", "handle", al.Handle, "pending", a.pending)
		return
	}
	a.pending = 0
	a.lastActive = a.m.cfg.Now()

	if !a.session.Fired {
		a.session.Fired = true
		a.persist(ctx)
	}
	a.reply(ctx, Message{
		Text:    fmt.Sprintf("Beep! %d seconds are over!", int(al.Payload.Duration.Seconds())),
		Choices: []Choice{stopAlarmChoice},
	})
	a.scheduleReminder()
}

func (a *actor) scheduleReminder() {
	d := a.m.cfg.ReminderInterval
	a.pending = a.m.sched.Schedule(a.id, d, AlarmPayload{Duration: d, Reminder: true})
}

// clearAlarm cancels the pending alarm and forgets its handle, so a fire
// already on its way is dropped as stale.
func (a *actor) clearAlarm() bool {
	removed := a.m.sched.Cancel(a.id)
	a.pending = 0
	return removed
}

func (a *actor) stopWork(ctx context.Context) {
	if !a.session.WorkAlarm {
		a.reply(ctx, Message{Text: "No work started yet!"})
		return
	}
	a.acknowledge(ctx)
}

func (a *actor) stopAlarm(ctx context.Context) {
	if !a.session.IsArmed() {
		a.reply(ctx, Message{Text: "You have no active timer."})
		return
	}
	if a.session.WorkAlarm {
		a.acknowledge(ctx)
		return
	}
	a.clearAlarm()
	a.session.Reset()
	a.persist(ctx)
	a.reply(ctx, Message{Text: "Alarm stopped successfully!"})
	a.reply(ctx, Message{Text: "Select a duration:", Choices: a.m.cfg.Presets.Choices(RoleWork)})
}

// workEnd is the end of the interval being acknowledged: the scheduled end
// once the alarm rang, otherwise now, kept within [start, scheduled end].
func (a *actor) workEnd() time.Time {
	if a.session.Fired {
		return a.session.EndTime
	}
	end := a.m.cfg.Now()
	if end.Before(a.session.StartTime) {
		end = a.session.StartTime
	}
	if end.After(a.session.EndTime) {
		end = a.session.EndTime
	}
	return end
}

// acknowledge finalizes the running work interval, then offers a break.
// When the store fails the session stays armed so the stop can be retried.
func (a *actor) acknowledge(ctx context.Context) {
	interval := &domain.Interval{
		StartTime: a.session.StartTime,
		EndTime:   a.workEnd(),
		Type:      domain.IntervalWork,
	}

	sctx, cancel := context.WithTimeout(ctx, a.m.cfg.StoreTimeout)
	err := a.m.cfg.Recorder.InsertInterval(sctx, interval)
	cancel()

	if err != nil && !errors.Is(err, store.ErrDuplicateStart) {
		a.logger.Error("Failed to record work interval", "error", err)
		a.reply(ctx, Message{
			Text:    "Could not save your work right now. Your timer is still running, try stopping it again.",
			Choices: []Choice{stopWorkChoice},
		})
		return
	}

	a.clearAlarm()
	a.session.Reset()
	a.persist(ctx)

	breaks := a.m.cfg.Presets.Choices(RoleBreak)
	if err == nil {
		a.logger.Info("Work interval recorded", "interval_id", interval.ID, "duration", interval.Duration())
		a.sendTodayChart(ctx)
		a.reply(ctx, Message{
			Text:    fmt.Sprintf("Alarm stopped successfully! Consecutive tasks: %d.\nChoose break duration:", a.session.ConsecutiveCount),
			Choices: breaks,
		})
		return
	}
	a.logger.Warn("Work interval already recorded", "start_time", interval.StartTime)
	a.reply(ctx, Message{Text: "This work interval was already saved.\nChoose break duration:", Choices: breaks})
}

func (a *actor) cancelTimer(ctx context.Context) {
	removed := a.clearAlarm()
	wasArmed := a.session.IsArmed()
	a.session.Reset()
	if wasArmed {
		a.persist(ctx)
	}
	if removed || wasArmed {
		a.reply(ctx, Message{Text: "Timer successfully cancelled!"})
		return
	}
	a.reply(ctx, Message{Text: "You have no active timer."})
}

func (a *actor) sendStats(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, a.m.cfg.StoreTimeout)
	defer cancel()
	summary, err := a.m.cfg.Stats.Summary(sctx)
	if err != nil {
		a.logger.Error("Failed to compute stats", "error", err)
		a.reply(ctx, Message{Text: "Stats are unavailable right now."})
		return
	}
	a.reply(ctx, Message{Text: fmt.Sprintf("Stats:\nHighest score: %.2f hours.\nDaily average work: %.2f hours.",
		summary.MaxDailyHours, summary.AverageDailyHours)})
}

func (a *actor) sendToday(ctx context.Context) {
	if !a.sendTodayChart(ctx) {
		a.reply(ctx, Message{Text: "No data!"})
	}
}

// sendTodayChart reports whether an image was sent.
func (a *actor) sendTodayChart(ctx context.Context) bool {
	sctx, cancel := context.WithTimeout(ctx, a.m.cfg.StoreTimeout)
	defer cancel()
	day, err := a.m.cfg.Stats.Today(sctx)
	if errors.Is(err, stats.ErrNoData) {
		return false
	}
	if err != nil {
		a.logger.Error("Failed to load today's chart", "error", err)
		return false
	}
	png, err := a.m.cfg.Chart.RenderDay(day)
	if err != nil {
		a.logger.Error("Failed to render today's chart", "error", err)
		return false
	}
	if err := a.m.cfg.Notifier.SendImage(ctx, a.id, png); err != nil {
		a.logSendError("image", err)
		return false
	}
	return true
}

func (a *actor) reply(ctx context.Context, msg Message) {
	if err := a.m.cfg.Notifier.SendMessage(ctx, a.id, msg); err != nil {
		a.logSendError("message", err)
	}
}

func (a *actor) logSendError(kind string, err error) {
	a.logger.Debug("Reply not delivered", "kind", kind, "error", err)
}

func (a *actor) persist(ctx context.Context) {
	if a.m.cfg.Sessions == nil {
		return
	}
	a.session.UpdatedAt = a.m.cfg.Now()
	sctx, cancel := context.WithTimeout(ctx, a.m.cfg.StoreTimeout)
	defer cancel()
	if err := a.m.cfg.Sessions.UpsertSession(sctx, a.session); err != nil {
		a.logger.Warn("Failed to persist session snapshot", "error", err)
	}
}
