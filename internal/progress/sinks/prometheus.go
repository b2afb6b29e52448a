package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/dataset-importer/internal/progress"
)

// PrometheusSink exports run and source progress via Prometheus. Download and
// chunk level counters live in the metrics package; this sink covers what
// only the run lifecycle knows.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	sourcesCompleted *prometheus.CounterVec
	sourceRecords    *prometheus.CounterVec
	sourceDuration   *prometheus.HistogramVec
	sourceProcessed  *prometheus.GaugeVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importer_runs_started_total",
			Help: "Total import runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importer_runs_completed_total",
			Help: "Total import runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importer_runs_running",
			Help: "Current number of running import runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "importer_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 5400},
		}, []string{"result"}),
		sourcesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importer_sources_completed_total",
			Help: "Importer completions partitioned by source and result.",
		}, []string{"source", "result"}),
		sourceRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importer_source_records_total",
			Help: "Records accounted per source and outcome at source completion.",
		}, []string{"source", "outcome"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "importer_source_duration_seconds",
			Help:    "Importer duration partitioned by source and result.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"source", "result"}),
		sourceProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "importer_source_processed",
			Help: "Processed counter of the most recent chunk per source.",
		}, []string{"source"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.sourcesCompleted,
		s.sourceRecords,
		s.sourceDuration,
		s.sourceProcessed,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Name implements progress.Named.
func (s *PrometheusSink) Name() string { return "prometheus" }

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageSourceDone, progress.StageSourceError:
		s.handleSourceEvent(evt)
	case progress.StageChunkDone:
		s.sourceProcessed.WithLabelValues(evt.Source).Set(float64(evt.Processed))
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
		return
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		observe(s.runDuration.WithLabelValues("success"), evt)
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		observe(s.runDuration.WithLabelValues("error"), evt)
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) handleSourceEvent(evt progress.Event) {
	result := "success"
	if evt.Stage == progress.StageSourceError {
		result = "error"
	}
	s.sourcesCompleted.WithLabelValues(evt.Source, result).Inc()
	observe(s.sourceDuration.WithLabelValues(evt.Source, result), evt)
	for outcome, n := range map[string]int64{
		"committed":          evt.Counts.Committed,
		"rejected":           evt.Counts.Rejected,
		"fallback_committed": evt.Counts.FallbackCommitted,
		"failed":             evt.Counts.Failed,
	} {
		if n > 0 {
			s.sourceRecords.WithLabelValues(evt.Source, outcome).Add(float64(n))
		}
	}
}

func observe(o prometheus.Observer, evt progress.Event) {
	if evt.Dur > 0 {
		o.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
