package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2023, 5, 10, 14, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023-05-01", day(2023, 5, 1)},
		{" 2024-02-29 ", day(2024, 2, 29)},
		{"01.05.2023", day(2023, 5, 1)},
		{"today", day(2023, 5, 10)},
		{"tomorrow", day(2023, 5, 11)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []string{"", "   ", "qwertz"} {
		_, err := ParseDate(bad, now)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestResolveRangeDefaults(t *testing.T) {
	cfg := DefaultConfig()
	r, err := cfg.ResolveRange(now)
	require.NoError(t, err)
	assert.Equal(t, day(2023, 5, 10), r.Start)
	assert.Equal(t, day(2023, 6, 9), r.End)
	assert.Equal(t, DefaultRangeDays+1, r.Days())
	assert.Equal(t, "2023-05-10..2023-06-09", r.String())
}

func TestResolveRangeExplicit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DateStart = "2023-05-01"
	cfg.DateEnd = "2023-05-31"

	r, err := cfg.ResolveRange(now)
	require.NoError(t, err)

	from, to := r.Bounds()
	assert.Equal(t, "2023-05-01T00:00:00.000Z", from.Format("2006-01-02T15:04:05.000Z07:00"))
	assert.Equal(t, "2023-05-31T23:59:59.999Z", to.Format("2006-01-02T15:04:05.000Z07:00"))
	assert.False(t, r.TooLong())
}

func TestResolveRangeSingleDay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DateStart = "2023-05-01"
	cfg.DateEnd = "2023-05-01"

	r, err := cfg.ResolveRange(now)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Days())
}

func TestResolveRangeErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DateStart = "2023-05-31"
	cfg.DateEnd = "2023-05-01"

	_, err := cfg.ResolveRange(now)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "date_start", verr.Field)

	cfg.DateStart = "2023-05-01"
	cfg.DateEnd = "whenever"
	_, err = cfg.ResolveRange(now)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "date_end", verr.Field)
}

func TestRangeTooLong(t *testing.T) {
	tests := []struct {
		start, end time.Time
		want       bool
	}{
		{day(2023, 1, 1), day(2023, 1, 1), false},
		{day(2023, 1, 1), day(2024, 12, 31), false}, // 730 days apart
		{day(2023, 1, 1), day(2025, 1, 1), true},    // 731 days apart
		{day(2020, 1, 1), day(2030, 1, 1), true},
	}
	for _, tt := range tests {
		r, err := NewRange(tt.start, tt.end)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.TooLong(), "range %s", r)
	}
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		ExportFilename: " my_export ",
		Sources: []SourceConfig{
			{Path: "/data/work.ics"},
			{Name: "home", Path: "/data/home.JSON"},
			{ID: "x", Path: "/data/x.txt", Format: "ICS"},
		},
	}
	cfg.Normalize()

	assert.Equal(t, "primary", cfg.Calendar)
	assert.Equal(t, "my_export.ics", cfg.ExportFilename)
	assert.Equal(t, defaultRefreshCron, cfg.RefreshCron)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 5000, cfg.MaxOccurrencesPerEvent)

	assert.Equal(t, SourceConfig{ID: "work", Path: "/data/work.ics", Format: FormatICS}, cfg.Sources[0])
	assert.Equal(t, SourceConfig{ID: "home", Name: "home", Path: "/data/home.JSON", Format: FormatGoogleJSON}, cfg.Sources[1])
	assert.Equal(t, FormatICS, cfg.Sources[2].Format)

	require.NoError(t, cfg.Validate())
}

func TestEnsureICSExtension(t *testing.T) {
	assert.Equal(t, "a.ics", EnsureICSExtension("a"))
	assert.Equal(t, "a.ics", EnsureICSExtension("a.ics"))
	assert.Equal(t, "A.ICS", EnsureICSExtension("A.ICS"))
	assert.Equal(t, "a.txt.ics", EnsureICSExtension("a.txt"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"bad cron", func(c *Config) { c.RefreshCron = "every minute" }, "refresh"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"empty path", func(c *Config) { c.Sources[0].Path = "" }, "sources[0].path"},
		{"bad format", func(c *Config) { c.Sources[0].Format = "csv" }, "sources[0].format"},
		{"duplicate id", func(c *Config) {
			c.Sources = append(c.Sources, SourceConfig{ID: "primary", Path: "b.ics", Format: FormatICS})
		}, "sources[1].id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GCALEXPORT_CALENDAR":            "work",
		"GCALEXPORT_EXPORT_FILENAME":     "out",
		"GCALEXPORT_DATE_START":          "2023-05-01",
		"GCALEXPORT_FOLD_LINES":          "true",
		"GCALEXPORT_BASIC_AUTH_USER":     "admin",
		"GCALEXPORT_BASIC_AUTH_PASSWORD": "secret",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	cfg.Normalize()

	assert.Equal(t, "work", cfg.Calendar)
	assert.Equal(t, "out.ics", cfg.ExportFilename)
	assert.Equal(t, "2023-05-01", cfg.DateStart)
	assert.Empty(t, cfg.DateEnd)
	assert.True(t, cfg.FoldLines)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	assert.Equal(t, defaultListen, cfg.Listen)
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gcalexport.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcalexport.yaml")

	cfg := DefaultConfig()
	cfg.Calendar = "work"
	cfg.DateStart = "2023-05-01"
	cfg.FoldLines = true
	cfg.Sources = []SourceConfig{{ID: "work", Path: "work.ics", Format: FormatICS}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calendar: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteFileAtomicKeepsTargetOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ics")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	boom := errors.New("boom")
	err := WriteFileAtomic(path, 0o644, func(f *os.File) error {
		_, _ = f.WriteString("partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
