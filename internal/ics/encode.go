package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"gcalexport/internal/model"
)

// DefaultProdID is the product identifier written into every document.
const DefaultProdID = "-//Google Calendar Export//DE"

const crlf = "\r\n"

// Layouts for the two timestamp shapes. Date-times are always written in UTC
// with the Z suffix; sub-second precision is dropped.
const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405Z"
)

// Option tweaks an Encoder. The zero set of options produces the canonical
// output described on Encoder.
type Option func(*Encoder)

// WithProdID overrides the PRODID line.
func WithProdID(prodID string) Option {
	return func(e *Encoder) {
		e.prodID = prodID
	}
}

// WithLineFolding folds content lines longer than 75 octets.
// Off by default: folding changes the byte-exact output.
func WithLineFolding() Option {
	return func(e *Encoder) {
		e.fold = true
	}
}

// Encoder writes calendar events as an iCalendar document.
//
// Output shape:
//
//	BEGIN:VCALENDAR
//	VERSION:2.0
//	PRODID:-//Google Calendar Export//DE
//	BEGIN:VEVENT            (once per event, in input order)
//	UID:<id>                (verbatim)
//	SUMMARY:<text>          (only if present)
//	DTSTART:<timestamp>
//	DTEND:<timestamp>
//	DESCRIPTION:<text>      (only if present)
//	END:VEVENT
//	END:VCALENDAR
//
// Every line ends in CRLF. An Encoder holds no state between Encode calls.
type Encoder struct {
	w      io.Writer
	prodID string
	fold   bool
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	e := &Encoder{
		w:      w,
		prodID: DefaultProdID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode is shorthand for NewEncoder(w, opts...).Encode(events).
func Encode(w io.Writer, events []model.CalendarEvent, opts ...Option) (int, error) {
	return NewEncoder(w, opts...).Encode(events)
}

// Encode validates events, then writes the whole document in one pass.
//
// It returns the number of VEVENT blocks written, which equals len(events)
// on success. Invalid events yield a *MalformedEventError before anything is
// written. A failing sink yields a *SinkWriteError together with the number
// of blocks that were completely handed to the sink.
func (e *Encoder) Encode(events []model.CalendarEvent) (int, error) {
	for i := range events {
		if err := validate(i, &events[i]); err != nil {
			return 0, err
		}
	}

	lw := &lineWriter{w: e.w, fold: e.fold}

	lw.line("BEGIN:VCALENDAR")
	lw.line("VERSION:2.0")
	lw.line("PRODID:" + e.prodID)

	n := 0
	for i := range events {
		writeEvent(lw, &events[i])
		if lw.err != nil {
			return n, &SinkWriteError{Err: lw.err}
		}
		n++
	}

	lw.line("END:VCALENDAR")
	if lw.err != nil {
		return n, &SinkWriteError{Err: lw.err}
	}
	return n, nil
}

func writeEvent(lw *lineWriter, ev *model.CalendarEvent) {
	lw.line("BEGIN:VEVENT")
	lw.line("UID:" + ev.ID)
	if ev.Summary != nil {
		lw.line("SUMMARY:" + Escape(*ev.Summary))
	}
	lw.line("DTSTART:" + FormatTimestamp(ev.Start))
	lw.line("DTEND:" + FormatTimestamp(ev.End))
	if ev.Description != nil {
		lw.line("DESCRIPTION:" + Escape(*ev.Description))
	}
	lw.line("END:VEVENT")
}

func validate(index int, ev *model.CalendarEvent) error {
	switch {
	case ev.ID == "":
		return &MalformedEventError{Index: index, Reason: "missing id"}
	case strings.ContainsAny(ev.ID, "\r\n"):
		return &MalformedEventError{Index: index, ID: ev.ID, Reason: "id contains a line break"}
	case ev.Start.IsZero() && ev.End.IsZero():
		return &MalformedEventError{Index: index, ID: ev.ID, Reason: "missing start and end"}
	case ev.Start.IsZero():
		return &MalformedEventError{Index: index, ID: ev.ID, Reason: "missing start"}
	case ev.End.IsZero():
		return &MalformedEventError{Index: index, ID: ev.ID, Reason: "missing end"}
	}
	return nil
}

// FormatTimestamp renders ts in iCalendar basic format:
//
//	date       -> 20230501
//	date-time  -> 20230501T000000Z   (always UTC, no fractional seconds)
//
// The zero Timestamp renders as "".
func FormatTimestamp(ts model.Timestamp) string {
	switch ts.Kind() {
	case model.KindDate:
		return ts.Time().Format(dateLayout)
	case model.KindDateTime:
		return ts.Time().UTC().Truncate(time.Second).Format(dateTimeLayout)
	default:
		return ""
	}
}

// Escape applies iCalendar TEXT escaping: backslash, comma, semicolon and
// newline. Colons and carriage returns pass through.
func Escape(text string) string {
	return ical.ToText(text)
}

// lineWriter writes CRLF-terminated lines and remembers the first error so
// callers can check once per block.
type lineWriter struct {
	w    io.Writer
	fold bool
	err  error
}

func (lw *lineWriter) line(s string) {
	if lw.err != nil {
		return
	}
	if lw.fold {
		s = Fold(s)
	}
	_, lw.err = io.WriteString(lw.w, s+crlf)
}
