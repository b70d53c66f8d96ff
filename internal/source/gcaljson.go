package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"gcalexport/internal/ics"
	appLog "gcalexport/internal/log"
	"gcalexport/internal/model"
)

// GoogleJSON serves events from a saved Google Calendar events.list response.
//
// Both singleEvents=true dumps (instances already expanded) and raw dumps
// (recurring masters with RRULE/EXDATE plus modified or cancelled instances)
// are understood; the latter are expanded the same way as ICS files.
type GoogleJSON struct {
	ID     string
	Path   string
	Loader *Loader

	MaxOccurrencesPerEvent int
}

// Events implements Source.
func (s *GoogleJSON) Events(ctx context.Context, q Query) ([]model.CalendarEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	loader := s.Loader
	if loader == nil {
		loader = defaultLoader
	}
	res, err := loader.Load(ctx, s.Path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.Path, err)
	}

	items, err := DecodeGoogleEvents(res.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}

	parsed := googleToParsed(ics.Source{ID: s.ID, Path: s.Path}, items)

	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		RangeStart:             q.Start,
		RangeEnd:               q.End,
		MaxOccurrencesPerEvent: s.MaxOccurrencesPerEvent,
	})
	if err != nil {
		return nil, err
	}

	events := expanded.Events
	sortEvents(events)
	return events, nil
}

// DecodeGoogleEvents decodes an events.list response body, or a bare JSON
// array of events.
func DecodeGoogleEvents(body []byte) ([]*calendar.Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty JSON body")
	}

	if trimmed[0] == '[' {
		var items []*calendar.Event
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var resp calendar.Events
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func googleToParsed(src ics.Source, items []*calendar.Event) []ics.ParsedEvent {
	masters := make(map[string]bool)
	for _, it := range items {
		if it != nil && len(it.Recurrence) > 0 {
			masters[it.Id] = true
		}
	}

	out := make([]ics.ParsedEvent, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		pe, err := googleEventToParsed(src, it, masters)
		if err != nil {
			appLog.Warn("google event skipped", "source", src.ID, "event_id", it.Id, "reason", err.Error())
			continue
		}
		out = append(out, pe)
	}
	return out
}

func googleEventToParsed(src ics.Source, it *calendar.Event, masters map[string]bool) (ics.ParsedEvent, error) {
	pe := ics.ParsedEvent{
		Source:    src,
		UID:       it.Id,
		Seq:       int(it.Sequence),
		Cancelled: strings.EqualFold(it.Status, "cancelled"),
	}
	if pe.UID == "" {
		return pe, errors.New("missing id")
	}

	// The Go client cannot tell a missing title from an empty one; both are
	// treated as absent.
	if it.Summary != "" {
		pe.Summary = model.Text(it.Summary)
	}
	if it.Description != "" {
		pe.Description = model.Text(it.Description)
	}

	override := it.RecurringEventId != "" && masters[it.RecurringEventId] && it.OriginalStartTime != nil
	if override {
		rid, _, err := googleTime(it.OriginalStartTime)
		if err != nil {
			return pe, fmt.Errorf("originalStartTime: %w", err)
		}
		pe.UID = it.RecurringEventId
		pe.Recurrence = &rid
		pe.IsOverride = true

		// Cancelled instances usually carry no times of their own.
		if pe.Cancelled && it.Start == nil {
			pe.Start, pe.End = rid, rid
			return pe, nil
		}
	}

	start, allDay, err := googleTime(it.Start)
	if err != nil {
		return pe, fmt.Errorf("start: %w", err)
	}
	pe.Start = start
	pe.AllDay = allDay

	switch {
	case it.End != nil:
		end, _, err := googleTime(it.End)
		if err != nil {
			return pe, fmt.Errorf("end: %w", err)
		}
		pe.End = end
	case allDay:
		pe.End = start.AddDate(0, 0, 1)
	default:
		pe.End = start
	}

	for _, line := range it.Recurrence {
		applyRecurrenceLine(&pe, line)
	}

	return pe, nil
}

// googleTime reads an EventDateTime; dateTime wins over date. Dates are
// anchored at midnight UTC.
func googleTime(edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, errors.New("missing")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		if edt.TimeZone != "" {
			if loc, lerr := time.LoadLocation(edt.TimeZone); lerr == nil {
				t = t.In(loc)
			}
		}
		return t, false, nil
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation(time.DateOnly, edt.Date, time.UTC)
		return t, true, err
	}
	return time.Time{}, false, errors.New("neither date nor dateTime set")
}

// applyRecurrenceLine handles the RRULE and EXDATE lines of a Google
// "recurrence" array. RDATE and EXRULE are ignored.
func applyRecurrenceLine(pe *ics.ParsedEvent, line string) {
	name, params, value, ok := splitContentLine(line)
	if !ok {
		return
	}
	switch name {
	case "RRULE":
		pe.RawRRule = value
	case "EXDATE":
		tzid := params["TZID"]
		if tzid == "" && strings.EqualFold(params["VALUE"], "DATE") {
			tzid = "UTC"
		}
		for _, part := range strings.Split(value, ",") {
			if t, err := ics.ParseTime(part, tzid); err == nil {
				pe.ExDates = append(pe.ExDates, t)
			}
		}
	}
}

// splitContentLine splits "NAME;P1=V1;P2=V2:VALUE".
func splitContentLine(line string) (name string, params map[string]string, value string, ok bool) {
	head, value, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok {
		return "", nil, "", false
	}
	parts := strings.Split(head, ";")
	name = strings.ToUpper(parts[0])
	params = make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, found := strings.Cut(p, "=")
		if found {
			params[strings.ToUpper(k)] = v
		}
	}
	return name, params, value, true
}
