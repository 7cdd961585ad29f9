package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// recorder collects delivered snapshots
type recorder struct {
	mu    sync.Mutex
	snaps []models.LiveSnapshot
}

func (r *recorder) handle(snap models.LiveSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) all() []models.LiveSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LiveSnapshot(nil), r.snaps...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func liveSnapshot(fixtureID, status string, at time.Time) models.LiveSnapshot {
	return models.LiveSnapshot{
		Topic:     FixtureTopic("fixture:", fixtureID),
		FixtureID: fixtureID,
		Status:    status,
		Score:     &models.Score{Home: 1, Away: 0},
		UpdatedAt: at,
	}
}

// TestFixtureTopic tests topic naming
func TestFixtureTopic(t *testing.T) {
	assert.Equal(t, "fixture:123", FixtureTopic("fixture:", "123"))
	assert.Equal(t, "123", FixtureTopic("", "123"))
	assert.Equal(t, "standings:epl", StandingsTopic("standings:", "epl"))
}

// TestHub_SubscribeEmptyTopic tests that an empty topic is rejected
func TestHub_SubscribeEmptyTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rec := &recorder{}

	sub, err := hub.Subscribe(context.Background(), "", rec.handle)

	require.Error(t, err)
	assert.Nil(t, sub)
	var subErr *models.SubscriptionError
	assert.True(t, errors.As(err, &subErr))
}

// TestHub_SubscribeUnpublished tests that a quiet topic produces no callback and no error
func TestHub_SubscribeUnpublished(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rec := &recorder{}

	sub, err := hub.Subscribe(context.Background(), "fixture:1", rec.handle)

	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())
	assert.Equal(t, "fixture:1", sub.Topic())
	assert.Zero(t, rec.count())
	assert.Equal(t, 1, hub.Subscribers("fixture:1"))
}

// TestHub_ReplaysLastSnapshot tests that a late subscriber gets the current state before Subscribe returns
func TestHub_ReplaysLastSnapshot(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	now := time.Now()

	require.NoError(t, hub.Publish(context.Background(), liveSnapshot("1", models.StatusLive, now)))
	require.NoError(t, hub.Publish(context.Background(), liveSnapshot("1", models.StatusHalfTime, now.Add(time.Second))))

	rec := &recorder{}
	_, err := hub.Subscribe(context.Background(), "fixture:1", rec.handle)

	require.NoError(t, err)
	snaps := rec.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StatusHalfTime, snaps[0].Status)
}

// TestHub_PublishFansOut tests that every subscriber of a topic gets each snapshot
func TestHub_PublishFansOut(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	first, second, other := &recorder{}, &recorder{}, &recorder{}

	_, err := hub.Subscribe(context.Background(), "fixture:1", first.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe(context.Background(), "fixture:1", second.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe(context.Background(), "fixture:2", other.handle)
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), liveSnapshot("1", models.StatusLive, time.Now())))

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
	assert.Zero(t, other.count())
}

// TestHub_PublishWithoutTopic tests that a snapshot must name its topic
func TestHub_PublishWithoutTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	err := hub.Publish(context.Background(), models.LiveSnapshot{FixtureID: "1"})

	assert.Error(t, err)
}

// TestHub_DropsOutOfOrder tests that an older snapshot never replaces a newer one
func TestHub_DropsOutOfOrder(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rec := &recorder{}
	now := time.Now()

	_, err := hub.Subscribe(context.Background(), "fixture:1", rec.handle)
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), liveSnapshot("1", models.StatusFullTime, now)))
	require.NoError(t, hub.Publish(context.Background(), liveSnapshot("1", models.StatusLive, now.Add(-time.Minute))))

	snaps := rec.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StatusFullTime, snaps[0].Status)

	late := &recorder{}
	_, err = hub.Subscribe(context.Background(), "fixture:1", late.handle)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFullTime, late.all()[0].Status)
}

// TestHub_Unsubscribe tests that delivery stops and Unsubscribe is idempotent
func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rec := &recorder{}

	sub, err := hub.Subscribe(context.Background(), "fixture:1", rec.handle)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, hub.Publish(context.Background(), liveSnapshot("1", models.StatusLive, time.Now())))
	assert.Zero(t, rec.count())
	assert.Zero(t, hub.Subscribers("fixture:1"))
}

// TestHub_UnsubscribeWaitsForHandler tests that no callback runs after Unsubscribe returns
func TestHub_UnsubscribeWaitsForHandler(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	entered := make(chan struct{})
	proceed := make(chan struct{})

	sub, err := hub.Subscribe(context.Background(), "fixture:1", func(models.LiveSnapshot) {
		close(entered)
		<-proceed
	})
	require.NoError(t, err)

	go hub.Publish(context.Background(), liveSnapshot("1", models.StatusLive, time.Now()))
	<-entered

	unsubscribed := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatal("Unsubscribe returned while the handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(proceed)
	select {
	case <-unsubscribed:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe did not return")
	}
}
