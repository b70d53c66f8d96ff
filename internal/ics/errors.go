package ics

import (
	"errors"
	"strconv"
)

// ErrEmptyBody is returned by ParseICS for an empty payload.
var ErrEmptyBody = errors.New("empty ICS body")

// SinkWriteError reports that the destination refused a write. The cause is
// kept intact so callers can still match it with errors.Is / errors.As.
type SinkWriteError struct {
	Err error
}

func (e *SinkWriteError) Error() string {
	return "ics: write failed: " + e.Err.Error()
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// MalformedEventError reports an event that cannot be written as a VEVENT.
type MalformedEventError struct {
	// Index is the event's position in the input slice.
	Index  int
	ID     string
	Reason string
}

func (e *MalformedEventError) Error() string {
	msg := "ics: malformed event #" + strconv.Itoa(e.Index)
	if e.ID != "" {
		msg += " (" + strconv.Quote(e.ID) + ")"
	}
	return msg + ": " + e.Reason
}
