package source

import (
	"fmt"

	"gcalexport/internal/config"
)

// FromConfig builds a Registry from the configured sources. All sources
// share loader so a single fingerprint cache covers every file.
func FromConfig(cfg *config.Config, loader *Loader) (*Registry, error) {
	if loader == nil {
		loader = defaultLoader
	}

	r := NewRegistry()
	for _, sc := range cfg.Sources {
		var src Source
		switch sc.Format {
		case config.FormatICS:
			src = &ICSFile{ID: sc.ID, Path: sc.Path, Loader: loader, MaxOccurrencesPerEvent: cfg.MaxOccurrencesPerEvent}
		case config.FormatGoogleJSON:
			src = &GoogleJSON{ID: sc.ID, Path: sc.Path, Loader: loader, MaxOccurrencesPerEvent: cfg.MaxOccurrencesPerEvent}
		default:
			return nil, fmt.Errorf("source %q: unknown format %q", sc.ID, sc.Format)
		}
		r.Register(sc.ID, src)
	}
	return r, nil
}
