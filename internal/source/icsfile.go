package source

import (
	"context"
	"fmt"

	"gcalexport/internal/ics"
	"gcalexport/internal/model"
)

// ICSFile serves events from an iCalendar file on disk. Recurring events are
// expanded into single instances within the queried range.
type ICSFile struct {
	ID     string
	Path   string
	Loader *Loader

	// MaxOccurrencesPerEvent caps recurrence expansion; zero uses the
	// expander's default.
	MaxOccurrencesPerEvent int
}

// Events implements Source.
func (s *ICSFile) Events(ctx context.Context, q Query) ([]model.CalendarEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	res, err := s.loader().Load(ctx, s.Path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.Path, err)
	}

	parsed, err := ics.ParseICS(ics.Source{ID: s.ID, Path: s.Path}, res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}

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

func (s *ICSFile) loader() *Loader {
	if s.Loader == nil {
		return defaultLoader
	}
	return s.Loader
}
