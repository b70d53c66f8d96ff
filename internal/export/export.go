// Package export collects events from a source and writes them as an
// iCalendar document.
package export

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"gcalexport/internal/config"
	"gcalexport/internal/ics"
	appLog "gcalexport/internal/log"
	"gcalexport/internal/metrics"
	"gcalexport/internal/model"
	"gcalexport/internal/source"
)

// FileMode is the permission of written export files.
const FileMode os.FileMode = 0o644

// Exporter turns source query results into .ics output.
type Exporter struct {
	Source  source.Source
	Options []ics.Option
}

// New returns an Exporter reading from src.
func New(src source.Source, opts ...ics.Option) *Exporter {
	return &Exporter{Source: src, Options: opts}
}

// OptionsFromConfig maps config switches onto encoder options.
func OptionsFromConfig(cfg *config.Config) []ics.Option {
	var opts []ics.Option
	if cfg.ProdID != "" {
		opts = append(opts, ics.WithProdID(cfg.ProdID))
	}
	if cfg.FoldLines {
		opts = append(opts, ics.WithLineFolding())
	}
	return opts
}

// Query builds the source query covering r for calendarID.
func Query(r config.Range, calendarID string) source.Query {
	start, end := r.Bounds()
	return source.Query{Start: start, End: end, CalendarID: calendarID}
}

// ExportTo writes the events matching q to w and returns how many VEVENT
// blocks were written.
func (x *Exporter) ExportTo(ctx context.Context, w io.Writer, q source.Query) (n int, err error) {
	started := time.Now()
	defer func() { metrics.ObserveExport(started, n, err) }()

	events, err := x.collect(ctx, q)
	if err != nil {
		return 0, err
	}
	return ics.Encode(w, events, x.Options...)
}

// ExportFile writes the events matching q to path. The file is replaced
// atomically; on failure any previous file at path is left as it was.
func (x *Exporter) ExportFile(ctx context.Context, path string, q source.Query) (n int, err error) {
	started := time.Now()
	defer func() { metrics.ObserveExport(started, n, err) }()

	events, err := x.collect(ctx, q)
	if err != nil {
		return 0, err
	}

	err = config.WriteFileAtomic(path, FileMode, func(f *os.File) error {
		bw := bufio.NewWriter(f)
		var encErr error
		n, encErr = ics.Encode(bw, events, x.Options...)
		if encErr != nil {
			return encErr
		}
		if ferr := bw.Flush(); ferr != nil {
			return &ics.SinkWriteError{Err: ferr}
		}
		return nil
	})
	if err != nil {
		appLog.Error("export failed", err, "path", path, "calendar", q.CalendarID)
		return n, err
	}

	appLog.Info("export written",
		"path", path,
		"calendar", q.CalendarID,
		"events", n,
		"range_start", q.Start.Format(time.RFC3339),
		"range_end", q.End.Format(time.RFC3339),
		"took", time.Since(started),
	)
	return n, nil
}

func (x *Exporter) collect(ctx context.Context, q source.Query) ([]model.CalendarEvent, error) {
	events, err := x.Source.Events(ctx, q)
	if err != nil {
		appLog.Error("collect events failed", err, "calendar", q.CalendarID)
		return nil, err
	}
	appLog.Debug("events collected", "calendar", q.CalendarID, "count", len(events))
	return events, nil
}
