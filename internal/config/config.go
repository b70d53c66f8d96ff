package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Source formats understood by internal/source.
const (
	FormatICS        = "ics"
	FormatGoogleJSON = "gcal-json"
)

const (
	defaultCalendar       = "primary"
	defaultExportFilename = "calendar_export.ics"
	defaultListen         = "127.0.0.1:8080"
	defaultRefreshCron    = "*/15 * * * *"
	defaultTimezone       = "UTC"
)

// SourceConfig describes a single local calendar source.
type SourceConfig struct {
	// ID is the calendar identifier used in queries ("primary", "work", ...).
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Path is the file holding the calendar data.
	Path string `yaml:"path" json:"path"`
	// Format is "ics" or "gcal-json". Empty means: infer from the extension.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Calendar is the calendar ID exported by default.
	Calendar string `yaml:"calendar" json:"calendar"`

	// ExportFilename is where the .ics file is written.
	ExportFilename string `yaml:"export_filename" json:"export_filename"`

	// DateStart / DateEnd select the exported range. Accepted forms:
	// "2023-05-01", "01.05.2023" or natural language ("today", "next monday").
	// Empty DateStart means today; empty DateEnd means DateStart + 30 days.
	DateStart string `yaml:"date_start" json:"date_start"`
	DateEnd   string `yaml:"date_end" json:"date_end"`

	// Listen is the HTTP listen address used in serve mode.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for periodic re-export in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Timezone is the IANA zone used for display strings in /api/events.
	Timezone string `yaml:"timezone" json:"timezone"`

	// FoldLines enables 75-octet line folding in the export.
	FoldLines bool `yaml:"fold_lines" json:"fold_lines"`

	// ProdID overrides the PRODID line; empty keeps the default.
	ProdID string `yaml:"prod_id,omitempty" json:"prod_id,omitempty"`

	// MaxOccurrencesPerEvent caps recurrence expansion per event.
	MaxOccurrencesPerEvent int `yaml:"max_occurrences_per_event" json:"max_occurrences_per_event"`

	// Sources is the list of local calendar sources.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// ValidationError reports an unusable configuration value.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Msg
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Calendar:               defaultCalendar,
		ExportFilename:         defaultExportFilename,
		Listen:                 defaultListen,
		RefreshCron:            defaultRefreshCron,
		Timezone:               defaultTimezone,
		MaxOccurrencesPerEvent: 5000,
		Sources: []SourceConfig{
			{ID: defaultCalendar, Name: "Primary calendar", Path: "calendar.json", Format: FormatGoogleJSON},
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	c.Calendar = strings.TrimSpace(c.Calendar)
	if c.Calendar == "" {
		c.Calendar = defaultCalendar
	}

	c.ExportFilename = strings.TrimSpace(c.ExportFilename)
	if c.ExportFilename == "" {
		c.ExportFilename = defaultExportFilename
	}
	c.ExportFilename = EnsureICSExtension(c.ExportFilename)

	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = 5000
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			if s.Name != "" {
				s.ID = s.Name
			} else {
				s.ID = strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path))
			}
		}
		if s.Format == "" {
			s.Format = inferFormat(s.Path)
		}
		s.Format = strings.ToLower(s.Format)
	}
}

// Validate reports the first unusable value. Call Normalize first.
func (c *Config) Validate() error {
	if c.Calendar == "" {
		return &ValidationError{Field: "calendar", Msg: "must not be empty"}
	}
	if c.ExportFilename == "" {
		return &ValidationError{Field: "export_filename", Msg: "must not be empty"}
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return &ValidationError{Field: "refresh", Msg: err.Error()}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &ValidationError{Field: "timezone", Msg: err.Error()}
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		field := "sources[" + strconv.Itoa(i) + "]"
		if s.Path == "" {
			return &ValidationError{Field: field + ".path", Msg: "must not be empty"}
		}
		switch s.Format {
		case FormatICS, FormatGoogleJSON:
		default:
			return &ValidationError{Field: field + ".format", Msg: fmt.Sprintf("unknown format %q", s.Format)}
		}
		if seen[s.ID] {
			return &ValidationError{Field: field + ".id", Msg: fmt.Sprintf("duplicate id %q", s.ID)}
		}
		seen[s.ID] = true
	}
	return nil
}

// Location returns the display timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EnsureICSExtension appends ".ics" unless name already ends in it
// (case-insensitive).
func EnsureICSExtension(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".ics") {
		return name
	}
	return name + ".ics"
}

func inferFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatGoogleJSON
	}
	return FormatICS
}

// ApplyEnv overrides values from GCALEXPORT_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("GCALEXPORT_CALENDAR", &c.Calendar)
	set("GCALEXPORT_EXPORT_FILENAME", &c.ExportFilename)
	set("GCALEXPORT_DATE_START", &c.DateStart)
	set("GCALEXPORT_DATE_END", &c.DateEnd)
	set("GCALEXPORT_LISTEN", &c.Listen)
	set("GCALEXPORT_REFRESH", &c.RefreshCron)
	set("GCALEXPORT_TIMEZONE", &c.Timezone)

	if v := getenv("GCALEXPORT_FOLD_LINES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FoldLines = b
		}
	}
	user, pass := getenv("GCALEXPORT_BASIC_AUTH_USER"), getenv("GCALEXPORT_BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return WriteFileAtomic(path, 0o600, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
