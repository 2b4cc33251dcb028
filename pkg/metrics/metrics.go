package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adsb_ingest"

// Poll results.
const (
	PollFresh    = "fresh"
	PollDegraded = "degraded"
	PollFailed   = "failed"
	PollPanic    = "panic"
)

// Push results.
const (
	PushSuccess = "success"
	PushFailure = "failure"
)

type Metrics struct {
	Polls          *prometheus.CounterVec
	ChangedTotal   prometheus.Counter
	EvictedTotal   prometheus.Counter
	Tracked        prometheus.Gauge
	Pushes         *prometheus.CounterVec
	PushLatency    prometheus.Histogram
	MirrorErrors   prometheus.Counter
	LastSnapshotTs prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by result (fresh, degraded, failed, panic).",
		}, []string{"result"}),
		ChangedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changed_aircraft_total",
			Help:      "Aircraft whose change signature differed from the cached one.",
		}),
		EvictedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_aircraft_total",
			Help:      "Aircraft dropped from the cache because they were missing from a report.",
		}),
		Tracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_aircraft",
			Help:      "Aircraft currently held in the change-signature cache.",
		}),
		Pushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Telemetry events sent to the backend by result.",
		}, []string{"result"}),
		PushLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "Time taken by a single telemetry event delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		MirrorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loki_mirror_errors_total",
			Help:      "Aircraft that could not be handed to the Loki client.",
		}),
		LastSnapshotTs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix time of the last fresh aircraft report.",
		}),
	}
}
