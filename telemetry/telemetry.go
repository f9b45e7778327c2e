// Package telemetry implements the counters and durations spec.md section
// 4.7 names. Every emission is best-effort: a telemetry failure never
// aborts a run, mirroring the teacher's post-hoc aggregate pass in qa.go
// (a failure computing quality info never stops GSF processing either).
package telemetry

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry holds the named counters and phase-duration histogram spec.md
// section 4.7 lists.
type Telemetry struct {
	CatalogTotal     prometheus.Counter
	DiffUnchanged    prometheus.Counter
	FetchRequested   prometheus.Counter
	FetchSucceeded   prometheus.Counter
	FetchEmptyGPS    prometheus.Counter
	FetchFailed      prometheus.Counter
	ArchiveBytes     prometheus.Counter
	CompressionRatio prometheus.Gauge
	TileBytes        prometheus.Counter
	PhaseDuration    *prometheus.HistogramVec
}

// New registers the counters against reg. Passing prometheus.NewRegistry()
// keeps each run's metrics isolated for tests; production wiring passes
// the default registry.
func New(reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		CatalogTotal:     prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_catalog_total", Help: "activities seen in the remote catalog listing"}),
		DiffUnchanged:    prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_diff_unchanged", Help: "activities carried forward without a refetch"}),
		FetchRequested:   prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_diff_fetch_requested", Help: "activities enqueued for fetch+convert"}),
		FetchSucceeded:   prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_fetch_succeeded", Help: "activities fetched and converted with geometry"}),
		FetchEmptyGPS:    prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_fetch_empty_gps", Help: "activities fetched and converted with no geometry"}),
		FetchFailed:      prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_fetch_failed", Help: "activities that failed download or decode"}),
		ArchiveBytes:     prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_archive_bytes_compressed", Help: "compressed archive size of the most recent run"}),
		CompressionRatio: prometheus.NewGauge(prometheus.GaugeOpts{Name: "sync_archive_compression_ratio", Help: "raw/compressed byte ratio of the most recent run"}),
		TileBytes:        prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_tile_bytes", Help: "tile bundle size of the most recent run"}),
		PhaseDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "sync_phase_duration_seconds", Help: "duration of each sync phase"}, []string{"phase"}),
	}

	for _, c := range []prometheus.Collector{
		t.CatalogTotal, t.DiffUnchanged, t.FetchRequested, t.FetchSucceeded,
		t.FetchEmptyGPS, t.FetchFailed, t.ArchiveBytes, t.CompressionRatio,
		t.TileBytes, t.PhaseDuration,
	} {
		if err := reg.Register(c); err != nil {
			log.Printf("telemetry: register %v failed (continuing): %v", c, err)
		}
	}

	return t
}

// ObservePhase records how long a phase took. Call with defer and
// time.Now() at phase entry: defer t.ObservePhase("load", time.Now()).
func (t *Telemetry) ObservePhase(phase string, start time.Time) {
	t.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
