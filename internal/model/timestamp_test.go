package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		kind TimestampKind
		want time.Time
	}{
		{"2023-05-01", KindDate, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2023-05-01T00:00:00.000Z", KindDateTime, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2023-05-01T10:00:00+02:00", KindDateTime, time.Date(2023, 5, 1, 8, 0, 0, 0, time.UTC)},
		{" 2023-12-31T23:59:59.999Z ", KindDateTime, time.Date(2023, 12, 31, 23, 59, 59, 999000000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ts.Kind())
			assert.True(t, tt.want.Equal(ts.Time()), "got %s", ts.Time())
			assert.Equal(t, time.UTC, ts.Time().Location())
		})
	}
}

func TestParseTimestampErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "2023-13-01", "2023-05-01T25:00:00Z", "yesterday"} {
		_, err := ParseTimestamp(in)
		assert.Error(t, err, in)
	}
}

func TestTimestampZero(t *testing.T) {
	var ts Timestamp
	assert.True(t, ts.IsZero())
	assert.Equal(t, KindNone, ts.Kind())
	assert.Equal(t, "", ts.String())

	assert.False(t, Date(2024, 2, 29).IsZero())
	assert.False(t, DateTime(time.Time{}).IsZero())
}

func TestDateOfDropsClock(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts := DateOf(time.Date(2024, 1, 1, 3, 0, 0, 0, loc))
	assert.Equal(t, "2024-01-01", ts.String())
	assert.Equal(t, KindDate, ts.Kind())
}

func TestCalendarEventAllDay(t *testing.T) {
	ev := CalendarEvent{ID: "a", Start: Date(2024, 1, 1), End: Date(2024, 1, 2)}
	assert.True(t, ev.AllDay())

	ev.Start = DateTime(time.Now())
	assert.False(t, ev.AllDay())
}
