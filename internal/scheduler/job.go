package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"gcalexport/internal/config"
	"gcalexport/internal/export"
	appLog "gcalexport/internal/log"
	"gcalexport/internal/metrics"
	"gcalexport/internal/source"
)

// Job re-exports the configured calendar. A run is skipped when neither
// the source files nor the resolved date range changed since the last
// successful export and the output file is still in place.
type Job struct {
	Config   *config.Config
	Exporter *export.Exporter
	Loader   *source.Loader

	// Now defaults to time.Now.
	Now func() time.Time

	mu         sync.Mutex
	exported   bool
	lastRange  config.Range
	lastPrints map[string]string
}

// Run performs one refresh. skipped reports whether the export was not
// needed.
func (j *Job) Run(ctx context.Context) (skipped bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	r, err := j.Config.ResolveRange(now())
	if err != nil {
		return false, err
	}
	if r.TooLong() {
		appLog.Warn("export range is unusually long", "range", r.String(), "days", r.Days())
	}

	prints, err := j.fingerprints(ctx)
	if err != nil {
		return false, err
	}

	if j.exported && sameRange(r, j.lastRange) && maps.Equal(prints, j.lastPrints) && fileExists(j.Config.ExportFilename) {
		appLog.Debug("refresh skipped; sources and range unchanged", "range", r.String())
		metrics.ObserveSkipped()
		return true, nil
	}

	n, err := j.Exporter.ExportFile(ctx, j.Config.ExportFilename, export.Query(r, j.Config.Calendar))
	if err != nil {
		return false, err
	}

	j.exported = true
	j.lastRange = r
	j.lastPrints = prints
	appLog.Info("refresh completed", "events", n, "range", r.String(), "path", j.Config.ExportFilename)
	return false, nil
}

func (j *Job) fingerprints(ctx context.Context) (map[string]string, error) {
	if j.Loader == nil {
		return nil, errors.New("scheduler: job has no loader")
	}
	out := make(map[string]string, len(j.Config.Sources))
	for _, sc := range j.Config.Sources {
		res, err := j.Loader.Load(ctx, sc.Path)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.ID, err)
		}
		out[sc.Path] = res.Fingerprint
	}
	return out, nil
}

func sameRange(a, b config.Range) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
