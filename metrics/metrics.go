package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes the scheduling hot path's health. Nothing in the hot
// path escalates errors; dropped events, stale offs and forced releases
// surface here and in the debug log only.
type Collector struct {
	eventsSubmitted *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	tempoChanges    prometheus.Counter
	forcedReleases  prometheus.Counter
	staleNoteOffs   prometheus.Counter

	activeNotes prometheus.Gauge
	windowDepth prometheus.Gauge
}

// NewCollector builds and registers the metric set. A nil registerer uses
// the process-global default; tests pass their own registry so collectors
// don't collide.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		eventsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_events_submitted_total",
			Help: "Events submitted to the playback queue, by kind",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_events_dropped_total",
			Help: "Events dropped because the playback queue rejected them",
		}),
		tempoChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_tempo_changes_total",
			Help: "Tempo or sample-rate reconciliation passes executed",
		}),
		forcedReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_forced_releases_total",
			Help: "Active notes force-released by reconciliation or stop",
		}),
		staleNoteOffs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_stale_note_offs_total",
			Help: "Note-offs skipped because the note was already released",
		}),
		activeNotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_active_notes",
			Help: "Notes currently sounding (on submitted, off not yet)",
		}),
		windowDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_window_depth_beats",
			Help: "Beats of lookahead currently submitted ahead of the playhead",
		}),
	}

	reg.MustRegister(
		c.eventsSubmitted,
		c.eventsDropped,
		c.tempoChanges,
		c.forcedReleases,
		c.staleNoteOffs,
		c.activeNotes,
		c.windowDepth,
	)

	return c
}

// RecordSubmitted counts one queue submission of the given kind.
func (c *Collector) RecordSubmitted(kind string) {
	c.eventsSubmitted.WithLabelValues(kind).Inc()
}

// RecordDropped counts one rejected submission.
func (c *Collector) RecordDropped() {
	c.eventsDropped.Inc()
}

// RecordTempoChange counts one reconciliation pass.
func (c *Collector) RecordTempoChange() {
	c.tempoChanges.Inc()
}

// RecordForcedReleases counts notes released by a reconciliation pass.
func (c *Collector) RecordForcedReleases(n int) {
	c.forcedReleases.Add(float64(n))
}

// RecordStaleNoteOff counts a tolerated off for an already-released note.
func (c *Collector) RecordStaleNoteOff() {
	c.staleNoteOffs.Inc()
}

// SetActiveNotes updates the sounding-note gauge.
func (c *Collector) SetActiveNotes(n int) {
	c.activeNotes.Set(float64(n))
}

// SetWindowDepth updates the lookahead-depth gauge.
func (c *Collector) SetWindowDepth(beats float64) {
	c.windowDepth.Set(beats)
}

// StartServer exposes /metrics on the given port. Blocking - run in a
// goroutine.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
