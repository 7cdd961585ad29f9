package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew tests that every collector registers under the bet_sync namespace
func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch(OpInitial, "ok", 10*time.Millisecond)
	m.IncStaleDiscarded()
	m.ObserveSnapshot(3)
	m.SetActiveSubscriptions(2)
	m.IncSubscriptionErrors()
	m.AddSnapshotsConsumed(4)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"bet_sync_fetches_total",
		"bet_sync_fetch_duration_seconds",
		"bet_sync_stale_responses_discarded_total",
		"bet_sync_snapshots_applied_total",
		"bet_sync_items_merged_total",
		"bet_sync_active_subscriptions",
		"bet_sync_subscription_errors_total",
		"bet_sync_snapshots_consumed_total",
	}, names)
}

// TestNew_DuplicateRegistration tests that a registry cannot hold two sets
func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}

// TestObserve tests the recorded values
func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFetch(OpInitial, "ok", time.Millisecond)
	m.ObserveFetch(OpInitial, "ok", time.Millisecond)
	m.ObserveFetch(OpMore, "error", time.Millisecond)
	m.ObserveSnapshot(3)
	m.ObserveSnapshot(0)
	m.SetActiveSubscriptions(5)
	m.SetActiveSubscriptions(2)
	m.AddSnapshotsConsumed(4)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FetchesTotal.WithLabelValues(OpInitial, "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesTotal.WithLabelValues(OpMore, "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.FetchDuration))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SnapshotsApplied))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ItemsMerged))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSubscriptions))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.SnapshotsConsumed))
}

// TestNilMetrics tests that a nil *Metrics records nothing and does not panic
func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveFetch(OpMore, "ok", time.Second)
		m.IncStaleDiscarded()
		m.ObserveSnapshot(1)
		m.SetActiveSubscriptions(1)
		m.IncSubscriptionErrors()
		m.AddSnapshotsConsumed(1)
	})
}
