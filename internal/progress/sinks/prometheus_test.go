package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/statuswatch/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters, gauges and histograms follow the samples.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	failed := newSample(0)
	failed.Outcome = progress.Outcome(progress.FailureHTTPStatus)
	failed.Note = "http_status: unexpected status 503"

	running := newSample(25)
	running.RunID = failed.RunID
	running.Elapsed = 5 * time.Second
	running.ETA = 15 * time.Second
	running.ETAKnown = true

	done := newSample(100)
	done.RunID = failed.RunID
	done.Elapsed = 20 * time.Second
	done.ETAKnown = true
	done.Complete = true

	require.NoError(t, sink.Consume(context.Background(), []progress.Sample{failed, running}))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.polls.WithLabelValues("recording", "http_status")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.polls.WithLabelValues("recording", "ok")), 1e-9)
	require.InDelta(t, 25.0, testutil.ToFloat64(sink.count.WithLabelValues("recording")), 1e-9)
	require.InDelta(t, 100.0, testutil.ToFloat64(sink.target.WithLabelValues("recording")), 1e-9)
	require.InDelta(t, 5.0, testutil.ToFloat64(sink.elapsed.WithLabelValues("recording")), 1e-9)
	require.InDelta(t, 15.0, testutil.ToFloat64(sink.eta.WithLabelValues("recording")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.pollLatency, "statuswatch_poll_latency_seconds"))

	// The completing sample is counted once even when it is seen twice.
	require.NoError(t, sink.Consume(context.Background(), []progress.Sample{done, done}))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("recording")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.eta.WithLabelValues("recording")), 1e-9)
}

func TestPrometheusSinkDropsUnknownETA(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	known := newSample(10)
	known.ETA = time.Minute
	known.ETAKnown = true
	require.NoError(t, sink.Consume(context.Background(), []progress.Sample{known}))
	require.Equal(t, 1, testutil.CollectAndCount(sink.eta, "statuswatch_eta_seconds"))

	unknown := newSample(0)
	require.NoError(t, sink.Consume(context.Background(), []progress.Sample{unknown}))
	require.Equal(t, 0, testutil.CollectAndCount(sink.eta, "statuswatch_eta_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
