package domain

import (
	"fmt"
	"time"
)

const (
	// WireTimeLayout is the local date-time format exchanged on the wire.
	// No offset is transmitted; all parties share the reference zone.
	WireTimeLayout = "2006-01-02 15:04:05"
	// WireDateLayout is the calendar date format exchanged on the wire.
	WireDateLayout = "2006-01-02"
)

// FormatWireTime renders t as wall time in loc.
func FormatWireTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(WireTimeLayout)
}

// ParseWireTime parses a wire timestamp as wall time in loc.
func ParseWireTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(WireTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// ParseWireDate parses a wire date as midnight in loc.
func ParseWireDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(WireDateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DayKey returns the calendar date of t in loc, in wire date format.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(WireDateLayout)
}
