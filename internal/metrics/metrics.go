package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bet_sync"

// Fetch operations
const (
	OpInitial = "initial"
	OpMore    = "more"
)

// Metrics holds the collectors of the sync layer. A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchesTotal        *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	StaleDiscarded      prometheus.Counter
	SnapshotsApplied    prometheus.Counter
	ItemsMerged         prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
	SubscriptionErrors  prometheus.Counter
	SnapshotsConsumed   prometheus.Counter
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Page fetches by operation and result.",
		}, []string{"op", "result"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Page fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		StaleDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_discarded_total",
			Help:      "Fetch responses dropped because their key was reset while in flight.",
		}),
		SnapshotsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_applied_total",
			Help:      "Live snapshots merged into the cache.",
		}),
		ItemsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_merged_total",
			Help:      "Cached items replaced by a live snapshot overlay.",
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Fixture topics currently subscribed.",
		}),
		SubscriptionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_errors_total",
			Help:      "Failed topic subscriptions.",
		}),
		SnapshotsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_consumed_total",
			Help:      "Snapshots read from Kafka and published to the realtime backend.",
		}),
	}
}

// ObserveFetch records the outcome and latency of one page fetch.
func (m *Metrics) ObserveFetch(op, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(op, result).Inc()
	m.FetchDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) IncStaleDiscarded() {
	if m == nil {
		return
	}
	m.StaleDiscarded.Inc()
}

// ObserveSnapshot records one applied snapshot and how many items it rewrote.
func (m *Metrics) ObserveSnapshot(items int) {
	if m == nil {
		return
	}
	m.SnapshotsApplied.Inc()
	m.ItemsMerged.Add(float64(items))
}

func (m *Metrics) SetActiveSubscriptions(n int) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Set(float64(n))
}

func (m *Metrics) IncSubscriptionErrors() {
	if m == nil {
		return
	}
	m.SubscriptionErrors.Inc()
}

func (m *Metrics) AddSnapshotsConsumed(n int) {
	if m == nil {
		return
	}
	m.SnapshotsConsumed.Add(float64(n))
}
