package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const (
	// DefaultRangeDays is the span used when no end date is configured.
	DefaultRangeDays = 30
	// LongRangeDays is the span above which a range is reported as unusually long.
	LongRangeDays = 730
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Range is an inclusive span of calendar days. Start and End are midnight UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange builds a Range from two dates; the time of day is discarded.
func NewRange(start, end time.Time) (Range, error) {
	r := Range{Start: midnightUTC(start), End: midnightUTC(end)}
	if r.Start.After(r.End) {
		return Range{}, &ValidationError{
			Field: "date_start",
			Msg:   fmt.Sprintf("%s is after end date %s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly)),
		}
	}
	return r, nil
}

// Bounds returns the instants the range covers: 00:00:00.000Z on the first
// day through 23:59:59.999Z on the last.
func (r Range) Bounds() (time.Time, time.Time) {
	return r.Start, r.End.Add(24*time.Hour - time.Millisecond)
}

// Days reports the number of calendar days in the range.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start)/(24*time.Hour)) + 1
}

// TooLong reports whether end lies more than LongRangeDays after start.
func (r Range) TooLong() bool {
	return r.End.Sub(r.Start)/(24*time.Hour) > LongRangeDays
}

func (r Range) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

// ParseDate reads a calendar date. It accepts "2006-01-02", "02.01.2006"
// and natural language understood by olebedev/when ("today", "tomorrow",
// "next friday"), relative to now.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}

	for _, layout := range []string{time.DateOnly, "02.01.2006"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	res, err := dateParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("parse date %q: not a date", s)
	}
	return midnightUTC(res.Time), nil
}

// ResolveRange turns DateStart/DateEnd into a Range relative to now.
// An empty start means today; an empty end means start + DefaultRangeDays.
func (c *Config) ResolveRange(now time.Time) (Range, error) {
	start := midnightUTC(now)
	if c.DateStart != "" {
		t, err := ParseDate(c.DateStart, now)
		if err != nil {
			return Range{}, &ValidationError{Field: "date_start", Msg: err.Error()}
		}
		start = t
	}

	end := start.AddDate(0, 0, DefaultRangeDays)
	if c.DateEnd != "" {
		t, err := ParseDate(c.DateEnd, now)
		if err != nil {
			return Range{}, &ValidationError{Field: "date_end", Msg: err.Error()}
		}
		end = t
	}

	return NewRange(start, end)
}

// midnightUTC keeps the calendar date of t as seen in its own location.
func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
