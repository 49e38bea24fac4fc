package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/statuswatch/internal/progress"
)

// PrometheusSink exports poll and job progress metrics via Prometheus. It owns
// all collectors for poll outcomes, latency and the current job position.
type PrometheusSink struct {
	polls       *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec

	count   *prometheus.GaugeVec
	target  *prometheus.GaugeVec
	elapsed *prometheus.GaugeVec
	eta     *prometheus.GaugeVec

	runsCompleted *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_polls_total",
			Help: "Status polls partitioned by view and outcome.",
		}, []string{"view", "outcome"}),
		pollLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "statuswatch_poll_latency_seconds",
			Help:    "Status request latency per view.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"view"}),
		count: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statuswatch_progress_count",
			Help: "Items finished as last reported by the device.",
		}, []string{"view"}),
		target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statuswatch_progress_target",
			Help: "Item count at which the job is complete.",
		}, []string{"view"}),
		elapsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statuswatch_elapsed_seconds",
			Help: "Job time as last reported by the device.",
		}, []string{"view"}),
		eta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statuswatch_eta_seconds",
			Help: "Estimated remaining job time; absent until known.",
		}, []string{"view"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_runs_completed_total",
			Help: "Watch runs whose job reached the target.",
		}, []string{"view"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.polls,
		s.pollLatency,
		s.count,
		s.target,
		s.elapsed,
		s.eta,
		s.runsCompleted,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Sample) error {
	for _, sample := range batch {
		s.consumeSample(sample)
	}
	return nil
}

func (s *PrometheusSink) consumeSample(sample progress.Sample) {
	view := sample.View
	if view == "" {
		view = "unknown"
	}
	s.polls.WithLabelValues(view, string(sample.Outcome)).Inc()
	if sample.Latency > 0 {
		s.pollLatency.WithLabelValues(view).Observe(sample.Latency.Seconds())
	}
	if !sample.OK() {
		return
	}

	s.count.WithLabelValues(view).Set(float64(sample.Count))
	s.target.WithLabelValues(view).Set(float64(sample.Target))
	s.elapsed.WithLabelValues(view).Set(sample.Elapsed.Seconds())
	if sample.ETAKnown {
		s.eta.WithLabelValues(view).Set(sample.ETA.Seconds())
	} else {
		s.eta.DeleteLabelValues(view)
	}
	if sample.Complete && s.tracker.complete(sample.RunID) {
		s.runsCompleted.WithLabelValues(view).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker remembers which runs were already counted as completed.
type runTracker struct {
	mu   sync.Mutex
	done map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{done: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.done[id]; ok {
		return false
	}
	t.done[id] = struct{}{}
	return true
}
