package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// Hub is an in-process realtime backend. It keeps the last snapshot of every topic
// and replays it to new subscribers.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*hubTopic
	logger zerolog.Logger
}

type hubTopic struct {
	last *models.LiveSnapshot
	subs map[string]*subscription
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]*hubTopic),
		logger: logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Subscribe registers handler on topic and replays the topic's last snapshot
// synchronously before returning.
func (h *Hub) Subscribe(_ context.Context, topic string, handler SnapshotHandler) (Subscription, error) {
	if topic == "" {
		return nil, &models.SubscriptionError{Topic: topic, Err: fmt.Errorf("empty topic")}
	}

	var sub *subscription
	sub = newSubscription(topic, handler, func() {
		h.remove(topic, sub.id)
	})

	h.mu.Lock()
	t := h.topic(topic)
	t.subs[sub.id] = sub
	var replay *models.LiveSnapshot
	if t.last != nil {
		snap := *t.last
		replay = &snap
	}
	h.mu.Unlock()

	if replay != nil {
		sub.deliver(*replay)
	}

	h.logger.Debug().Str("topic", topic).Str("subscription_id", sub.id).Msg("subscribed")
	return sub, nil
}

// Publish stores snap as the topic's current state and delivers it to every
// subscriber on the calling goroutine.
func (h *Hub) Publish(_ context.Context, snap models.LiveSnapshot) error {
	if snap.Topic == "" {
		return fmt.Errorf("snapshot has no topic")
	}

	h.mu.Lock()
	t := h.topic(snap.Topic)
	if t.last != nil && !snap.UpdatedAt.IsZero() && snap.UpdatedAt.Before(t.last.UpdatedAt) {
		h.mu.Unlock()
		h.logger.Debug().Str("topic", snap.Topic).Msg("dropped out-of-order snapshot")
		return nil
	}
	stored := snap
	t.last = &stored
	subs := make([]*subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snap)
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	t, ok := h.topics[topic]
	if !ok {
		return 0
	}
	return len(t.subs)
}

// topic must be called with h.mu held for writing.
func (h *Hub) topic(name string) *hubTopic {
	t, ok := h.topics[name]
	if !ok {
		t = &hubTopic{subs: make(map[string]*subscription)}
		h.topics[name] = t
	}
	return t
}

func (h *Hub) remove(topic, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.topics[topic]; ok {
		delete(t.subs, id)
	}
}
