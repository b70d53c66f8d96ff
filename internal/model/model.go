package model

// CalendarEvent is a single, already-expanded calendar event as handed to the
// ICS encoder. Recurring events reach this type one instance at a time.
type CalendarEvent struct {
	// ID is the opaque event identifier, written verbatim as UID.
	ID string

	// Summary and Description are optional. nil means "absent" and the
	// corresponding property is omitted; a pointer to "" is present but empty.
	Summary     *string
	Description *string

	Start Timestamp
	End   Timestamp
}

// Text returns a pointer to s, for filling the optional text fields.
func Text(s string) *string {
	return &s
}

// AllDay reports whether the event starts on a date-only timestamp.
func (e CalendarEvent) AllDay() bool {
	return e.Start.Kind() == KindDate
}
