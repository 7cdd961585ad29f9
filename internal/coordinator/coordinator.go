package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/cypherlabdev/bet-sync-service/internal/cache"
	"github.com/cypherlabdev/bet-sync-service/internal/metrics"
	"github.com/cypherlabdev/bet-sync-service/internal/models"
	"github.com/cypherlabdev/bet-sync-service/internal/realtime"
)

// Store is the part of the cache store the coordinator drives
type Store interface {
	FixtureIDs(key models.CacheKey) []string
	Leagues(key models.CacheKey) []string
	ApplySnapshot(snap models.LiveSnapshot) int
	ApplyStandings(snap models.LiveSnapshot) int
	AddListener(l cache.Listener) func()
}

// Config holds coordinator configuration
type Config struct {
	TopicPrefix      string        // e.g., "fixture:"
	StandingsPrefix  string        // e.g., "standings:"
	SubscribeTimeout time.Duration // e.g., 5 * time.Second
}

// Coordinator keeps exactly one live subscription per topic referenced by any cached
// list and merges the snapshots it receives back into the store. Every fixture shown
// in a list has a fixture topic; every league shown has a standings topic.
//
// Subscriptions are reference counted by cache key: a topic is subscribed when the
// first key starts referencing it and unsubscribed when the last key stops. The
// registry is updated synchronously when a list changes, while Subscribe and
// Unsubscribe run in the background without c.mu held, so a page load never waits on
// the realtime backend.
type Coordinator struct {
	store      Store
	subscriber realtime.Subscriber
	config     Config
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	detach     func()

	// wg tracks background Subscribe and Unsubscribe calls. Add only with c.mu held
	// and c.closed unset.
	wg sync.WaitGroup

	mu     sync.Mutex
	keys   map[models.CacheKey]map[string]struct{}
	topics map[string]*topicRef
	errs   map[string]error
	closed bool
}

type refState int

const (
	statePending refState = iota
	stateActive
	stateFailed
)

type topicKind int

const (
	kindFixture topicKind = iota
	kindStandings
)

// topicRef is the registry entry of one topic. A new topicRef is created for every
// subscription lifetime, so a handler can tell whether it still belongs to the
// registry by pointer comparison.
type topicRef struct {
	topic string
	kind  topicKind
	id    string // fixture ID or league
	refs  int
	state refState
	sub   realtime.Subscription
	last  *models.LiveSnapshot
}

// NewCoordinator creates a coordinator and registers it as a listener on store
func NewCoordinator(
	store Store,
	subscriber realtime.Subscriber,
	config Config,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Coordinator {
	if config.SubscribeTimeout <= 0 {
		config.SubscribeTimeout = 5 * time.Second
	}
	if config.StandingsPrefix == "" {
		config.StandingsPrefix = "standings:"
	}

	c := &Coordinator{
		store:      store,
		subscriber: subscriber,
		config:     config,
		metrics:    m,
		logger:     logger.With().Str("component", "sync_coordinator").Logger(),
		keys:       make(map[models.CacheKey]map[string]struct{}),
		topics:     make(map[string]*topicRef),
		errs:       make(map[string]error),
	}
	c.detach = store.AddListener(c)
	return c
}

// ListChanged reconciles subscriptions whenever the item set of a key may have changed.
func (c *Coordinator) ListChanged(change cache.Change) {
	switch change.Kind {
	case cache.ChangeItems, cache.ChangeReset:
		c.Sync(change.Key)
	}
}

// Sync brings the subscriptions held on behalf of key in line with the fixtures and
// leagues the key currently references. It only touches the registry and the store;
// subscribing and unsubscribing happen in the background.
func (c *Coordinator) Sync(key models.CacheKey) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	// Read under c.mu so concurrent syncs of one key apply in order and the last
	// one always sees the latest item set.
	wanted := c.wanted(key)
	next := make(map[string]struct{}, len(wanted))
	for _, ref := range wanted {
		next[ref.topic] = struct{}{}
	}

	prev := c.keys[key]
	added := lo.Filter(wanted, func(ref topicRef, _ int) bool {
		_, ok := prev[ref.topic]
		return !ok
	})
	removed := lo.Filter(lo.Keys(prev), func(topic string, _ int) bool {
		_, ok := next[topic]
		return !ok
	})

	var subscribe []*topicRef
	for _, want := range added {
		ref, ok := c.topics[want.topic]
		if !ok {
			ref = &topicRef{topic: want.topic, kind: want.kind, id: want.id, state: statePending}
			c.topics[want.topic] = ref
			subscribe = append(subscribe, ref)
		} else if ref.state == stateFailed {
			// A new reference to a failed topic is the only trigger for another attempt.
			ref.state = statePending
			subscribe = append(subscribe, ref)
		}
		ref.refs++
	}

	var release []realtime.Subscription
	for _, topic := range removed {
		ref, ok := c.topics[topic]
		if !ok {
			continue
		}
		ref.refs--
		if ref.refs > 0 {
			continue
		}
		delete(c.topics, topic)
		delete(c.errs, topic)
		if ref.sub != nil {
			release = append(release, ref.sub)
		}
	}

	if len(next) == 0 {
		delete(c.keys, key)
	} else {
		c.keys[key] = next
	}

	type overlay struct {
		kind topicKind
		snap models.LiveSnapshot
	}
	var overlays []overlay
	for topic := range next {
		if ref, ok := c.topics[topic]; ok && ref.last != nil {
			overlays = append(overlays, overlay{kind: ref.kind, snap: *ref.last})
		}
	}

	c.wg.Add(len(subscribe))
	if len(release) > 0 {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	for _, ref := range subscribe {
		go c.subscribe(ref)
	}
	if len(release) > 0 {
		go c.release(release)
	}
	// Rows that just arrived may carry older live data than the last snapshot.
	for _, o := range overlays {
		c.apply(o.kind, o.snap)
	}

	if len(release) > 0 || len(subscribe) > 0 {
		c.logger.Debug().
			Str("key", key.String()).
			Int("subscribing", len(subscribe)).
			Int("releasing", len(release)).
			Msg("reconciled topic subscriptions")
	}
}

// wanted lists the topics key references, fixtures first. Must be called with c.mu held.
func (c *Coordinator) wanted(key models.CacheKey) []topicRef {
	fixtures := c.store.FixtureIDs(key)
	leagues := c.store.Leagues(key)

	refs := make([]topicRef, 0, len(fixtures)+len(leagues))
	for _, id := range fixtures {
		refs = append(refs, topicRef{
			topic: realtime.FixtureTopic(c.config.TopicPrefix, id),
			kind:  kindFixture,
			id:    id,
		})
	}
	for _, league := range leagues {
		refs = append(refs, topicRef{
			topic: realtime.StandingsTopic(c.config.StandingsPrefix, league),
			kind:  kindStandings,
			id:    league,
		})
	}
	return refs
}

func (c *Coordinator) subscribe(ref *topicRef) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
	sub, err := c.subscriber.Subscribe(ctx, ref.topic, func(snap models.LiveSnapshot) {
		c.handleSnapshot(ref, snap)
	})
	cancel()

	c.mu.Lock()
	if c.closed || c.topics[ref.topic] != ref {
		// Released while subscribing.
		c.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return
	}
	if err != nil {
		ref.state = stateFailed
		c.errs[ref.topic] = err
		c.mu.Unlock()

		c.metrics.IncSubscriptionErrors()
		c.logger.Warn().
			Err(err).
			Str("topic", ref.topic).
			Msg("topic subscription failed")
		return
	}
	ref.sub = sub
	ref.state = stateActive
	delete(c.errs, ref.topic)
	active := c.activeLocked()
	c.mu.Unlock()

	c.metrics.SetActiveSubscriptions(active)
	c.logger.Debug().
		Str("topic", ref.topic).
		Str("subscription_id", sub.ID()).
		Int("active", active).
		Msg("subscribed to topic")
}

func (c *Coordinator) release(subs []realtime.Subscription) {
	defer c.wg.Done()

	for _, sub := range subs {
		sub.Unsubscribe()
		c.logger.Debug().Str("topic", sub.Topic()).Msg("unsubscribed")
	}
	c.metrics.SetActiveSubscriptions(c.ActiveCount())
}

func (c *Coordinator) handleSnapshot(ref *topicRef, snap models.LiveSnapshot) {
	switch ref.kind {
	case kindStandings:
		snap.League = ref.id
	default:
		snap.FixtureID = ref.id
	}

	c.mu.Lock()
	if c.closed || c.topics[ref.topic] != ref {
		c.mu.Unlock()
		return
	}
	last := snap
	ref.last = &last
	c.mu.Unlock()

	c.apply(ref.kind, snap)
}

func (c *Coordinator) apply(kind topicKind, snap models.LiveSnapshot) {
	if kind == kindStandings {
		c.store.ApplyStandings(snap)
		return
	}
	c.store.ApplySnapshot(snap)
}

// ActiveTopics returns the topics that currently hold a live subscription, sorted.
func (c *Coordinator) ActiveTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.topics))
	for topic, ref := range c.topics {
		if ref.sub != nil {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// ActiveCount returns the number of live subscriptions.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

// References returns how many cache keys reference each topic, whether or not its
// subscription is up yet.
func (c *Coordinator) References() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(c.topics))
	for topic, ref := range c.topics {
		out[topic] = ref.refs
	}
	return out
}

// SubscriptionErrors returns the last subscription failure of every topic that is
// referenced but could not be subscribed.
func (c *Coordinator) SubscriptionErrors() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]error, len(c.errs))
	for topic, err := range c.errs {
		out[topic] = err
	}
	return out
}

// Close drops every subscription, waits for background subscribe calls to finish and
// stops listening to the store.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var release []realtime.Subscription
	for _, ref := range c.topics {
		if ref.sub != nil {
			release = append(release, ref.sub)
		}
	}
	c.topics = make(map[string]*topicRef)
	c.keys = make(map[models.CacheKey]map[string]struct{})
	c.mu.Unlock()

	c.detach()
	for _, sub := range release {
		sub.Unsubscribe()
	}
	c.wg.Wait()
	c.metrics.SetActiveSubscriptions(0)
	c.logger.Info().Int("released", len(release)).Msg("coordinator closed")
}

func (c *Coordinator) activeLocked() int {
	n := 0
	for _, ref := range c.topics {
		if ref.sub != nil {
			n++
		}
	}
	return n
}
