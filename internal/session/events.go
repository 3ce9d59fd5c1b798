package session

import (
	"context"
	"time"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/stats"
)

// Action is a user-initiated event.
type Action string

const (
	ActionStart      Action = "start"
	ActionStartWork  Action = "start_work"
	ActionStopWork   Action = "stop_work"
	ActionStartBreak Action = "start_break"
	ActionSelect     Action = "select"
	ActionStopAlarm  Action = "stop_alarm"
	ActionCancel     Action = "cancel"
	ActionStats      Action = "stats"
	ActionToday      Action = "today"
)

var actions = map[Action]struct{}{
	ActionStart: {}, ActionStartWork: {}, ActionStopWork: {}, ActionStartBreak: {},
	ActionSelect: {}, ActionStopAlarm: {}, ActionCancel: {}, ActionStats: {}, ActionToday: {},
}

func isReservedChoice(id string) bool {
	_, ok := actions[Action(id)]
	return ok
}

// Event is a user action addressed to one session.
type Event struct {
	Action Action
	Choice string
}

// ParseEvent builds an Event from a client action and choice. A bare choice
// naming an action is that action; any other bare choice is a selection.
func ParseEvent(action, choice string) (Event, bool) {
	if action == "" {
		if choice == "" {
			return Event{}, false
		}
		if isReservedChoice(choice) {
			return Event{Action: Action(choice)}, true
		}
		return Event{Action: ActionSelect, Choice: choice}, true
	}
	a := Action(action)
	if _, ok := actions[a]; !ok {
		return Event{}, false
	}
	if a == ActionSelect && choice == "" {
		return Event{}, false
	}
	return Event{Action: a, Choice: choice}, true
}

// Choice is one button offered to the user.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Message is a text reply with optional choices.
type Message struct {
	Text    string
	Choices []Choice
}

// Notifier delivers replies to the owner of a session.
type Notifier interface {
	SendMessage(ctx context.Context, sessionID string, msg Message) error
	SendImage(ctx context.Context, sessionID string, png []byte) error
}

// Recorder persists finalized intervals.
type Recorder interface {
	InsertInterval(ctx context.Context, interval *domain.Interval) error
}

// StatsSource answers the stats and today's chart requests.
type StatsSource interface {
	Today(ctx context.Context) (stats.DayChart, error)
	Summary(ctx context.Context) (stats.Summary, error)
}

// ChartRenderer turns today's chart input into an image.
type ChartRenderer interface {
	RenderDay(day stats.DayChart) ([]byte, error)
}

// AlarmPayload travels with a scheduled alarm.
type AlarmPayload struct {
	Duration time.Duration
	Reminder bool
}

// MainMenu is offered on start.
var MainMenu = []Choice{
	{ID: string(ActionStartWork), Label: "Start work"},
	{ID: string(ActionStopWork), Label: "Stop work"},
	{ID: string(ActionStartBreak), Label: "Start break"},
	{ID: string(ActionStats), Label: "Common stats"},
	{ID: string(ActionToday), Label: "Work done today"},
}

var (
	stopAlarmChoice = Choice{ID: string(ActionStopAlarm), Label: "Stop alarm"}
	stopWorkChoice  = Choice{ID: string(ActionStopWork), Label: "Stop work"}
)
