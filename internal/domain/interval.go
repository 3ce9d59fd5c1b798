// Package domain contains core domain types for the worklog application.
package domain

import (
	"fmt"
	"time"
)

// IntervalType classifies a finalized interval.
type IntervalType string

const (
	// IntervalWork is a focused work period.
	IntervalWork IntervalType = "work"
	// IntervalBreak is a rest period.
	IntervalBreak IntervalType = "break"
)

// Valid reports whether t is a known interval type.
func (t IntervalType) Valid() bool {
	return t == IntervalWork || t == IntervalBreak
}

// ParseIntervalType converts a wire value into an IntervalType.
func ParseIntervalType(s string) (IntervalType, error) {
	t := IntervalType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown interval type %q", s)
	}
	return t, nil
}

// Interval is a finalized work or break period. Intervals are append-only.
type Interval struct {
	ID        string       `json:"id"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Type      IntervalType `json:"type"`
}

// Duration returns the length of the interval.
func (i *Interval) Duration() time.Duration {
	return i.EndTime.Sub(i.StartTime)
}

// HasValidRange returns true if the interval does not end before it starts.
func (i *Interval) HasValidRange() bool {
	return !i.EndTime.Before(i.StartTime)
}
