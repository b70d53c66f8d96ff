package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gcalexport/internal/model"
)

// DefaultCalendarID names the calendar used when a query does not pick one.
const DefaultCalendarID = "primary"

// ErrUnknownCalendar is returned when no source is registered for a calendar ID.
var ErrUnknownCalendar = errors.New("unknown calendar")

// Query selects the events of one calendar overlapping [Start, End].
type Query struct {
	Start      time.Time
	End        time.Time
	CalendarID string
}

// Validate checks the query bounds.
func (q Query) Validate() error {
	if q.Start.IsZero() || q.End.IsZero() {
		return errors.New("query: start and end are required")
	}
	if q.End.Before(q.Start) {
		return fmt.Errorf("query: end %s is before start %s", q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}
	return nil
}

// Source returns the events of a calendar for a time range.
//
// Implementations return single instances (recurrences expanded), drop
// cancelled events, and order the result by start time.
type Source interface {
	Events(ctx context.Context, q Query) ([]model.CalendarEvent, error)
}

// Registry maps calendar IDs to sources.
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]Source
	defaultID string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds src under id. The first registered source becomes the
// default unless a source is registered as "primary".
func (r *Registry) Register(id string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[id] = src
	if r.defaultID == "" || id == DefaultCalendarID {
		r.defaultID = id
	}
}

// IDs returns the registered calendar IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for id := range r.sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a calendar ID. "" and "primary" resolve to the default
// source.
func (r *Registry) Lookup(id string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if src, ok := r.sources[id]; ok {
		return src, nil
	}
	if (id == "" || id == DefaultCalendarID) && r.defaultID != "" {
		return r.sources[r.defaultID], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCalendar, id)
}

// Events implements Source by dispatching on q.CalendarID.
func (r *Registry) Events(ctx context.Context, q Query) ([]model.CalendarEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	src, err := r.Lookup(q.CalendarID)
	if err != nil {
		return nil, err
	}
	return src.Events(ctx, q)
}

// sortEvents orders events by start time, then by ID for a stable result.
func sortEvents(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Start.Time(), events[j].Start.Time()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return strings.Compare(events[i].ID, events[j].ID) < 0
	})
}
