package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampKind tells the two timestamp shapes apart.
type TimestampKind int

const (
	// KindNone is the zero value: no timestamp.
	KindNone TimestampKind = iota
	// KindDate is a calendar date without time of day (all-day events).
	KindDate
	// KindDateTime is an instant.
	KindDateTime
)

func (k TimestampKind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindDateTime:
		return "date-time"
	default:
		return "none"
	}
}

// Timestamp is either a date (all-day) or a date-time. The zero value is
// absent; use Date or DateTime to build one.
type Timestamp struct {
	kind TimestampKind
	t    time.Time
}

// Date returns a date-only timestamp. Only the year/month/day are kept.
func Date(year int, month time.Month, day int) Timestamp {
	return Timestamp{kind: KindDate, t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the date-only timestamp for t's calendar day in t's location.
func DateOf(t time.Time) Timestamp {
	return Date(t.Year(), t.Month(), t.Day())
}

// DateTime returns a date-time timestamp for t, normalized to UTC.
func DateTime(t time.Time) Timestamp {
	return Timestamp{kind: KindDateTime, t: t.UTC()}
}

// Kind returns which variant ts holds.
func (ts Timestamp) Kind() TimestampKind { return ts.kind }

// IsZero reports whether ts is absent.
func (ts Timestamp) IsZero() bool { return ts.kind == KindNone }

// Time returns the underlying instant. Dates map to midnight UTC.
func (ts Timestamp) Time() time.Time { return ts.t }

// Before orders timestamps by their instant.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

func (ts Timestamp) String() string {
	switch ts.kind {
	case KindDate:
		return ts.t.Format(time.DateOnly)
	case KindDateTime:
		return ts.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// ParseTimestamp parses the two textual shapes calendar APIs hand out:
//
//	2023-05-01                 -> date
//	2023-05-01T00:00:00.000Z   -> date-time (UTC)
//	2023-05-01T10:00:00+02:00  -> date-time (normalized to UTC)
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, errors.New("empty timestamp")
	}
	if !strings.Contains(s, "T") {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return Timestamp{}, fmt.Errorf("parse date %q: %w", s, err)
		}
		return DateOf(d), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse date-time %q: %w", s, err)
	}
	return DateTime(t), nil
}
