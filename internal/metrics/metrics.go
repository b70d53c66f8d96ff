// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Export results used as the "result" label.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gcalexport_exports_total",
		Help: "Number of export runs by result.",
	}, []string{"result"})

	EventsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gcalexport_events_exported_total",
		Help: "Number of VEVENT blocks written.",
	})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gcalexport_export_duration_seconds",
		Help:    "Time spent collecting and encoding events for one export.",
		Buckets: prometheus.DefBuckets,
	})
)

// ObserveExport records the outcome of one export run.
func ObserveExport(started time.Time, events int, err error) {
	ExportDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		// A failed run may have counted events it never delivered.
		ExportsTotal.WithLabelValues(ResultError).Inc()
		return
	}
	EventsExported.Add(float64(events))
	ExportsTotal.WithLabelValues(ResultOK).Inc()
}

// ObserveSkipped records a scheduled run that found nothing to do.
func ObserveSkipped() {
	ExportsTotal.WithLabelValues(ResultSkipped).Inc()
}
