package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/cypherlabdev/bet-sync-service/internal/metrics"
	"github.com/cypherlabdev/bet-sync-service/internal/models"
	"github.com/cypherlabdev/bet-sync-service/pkg/livemerge"
)

const defaultPageSize = 20

// StoreConfig holds cache store configuration
type StoreConfig struct {
	DefaultPageSize int            // e.g., 20
	PageSizes       map[string]int // per tab overrides
	Now             func() time.Time
}

// Store caches one paginated list per cache key.
//
// Every key has its own lock and its own generation. Fetches for a key are
// single-flight per generation: concurrent LoadInitial/LoadMore calls join the
// fetch already in flight instead of issuing another one. Resetting a key moves it
// to a new generation, and any response that was requested under an older
// generation is dropped when it arrives.
type Store struct {
	fetcher PageFetcher
	config  StoreConfig
	now     func() time.Time
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.RWMutex
	entries map[models.CacheKey]*entry

	flights     singleflight.Group
	generations atomic.Uint64

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64

	standingsMu sync.RWMutex
	standings   map[string][]models.Standing
}

type entry struct {
	mu            sync.Mutex
	gen           uint64
	items         []models.Item
	offset        int
	hasMore       bool
	lastFetchedAt time.Time
	loading       bool
	err           error
	version       uint64
}

// NewStore creates a new cache store
func NewStore(fetcher PageFetcher, config StoreConfig, m *metrics.Metrics, logger zerolog.Logger) *Store {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = defaultPageSize
	}

	return &Store{
		fetcher:   fetcher,
		config:    config,
		now:       now,
		metrics:   m,
		logger:    logger.With().Str("component", "cache_store").Logger(),
		entries:   make(map[models.CacheKey]*entry),
		listeners: make(map[uint64]Listener),
		standings: make(map[string][]models.Standing),
	}
}

// PageSize returns the page size used for key.
func (s *Store) PageSize(key models.CacheKey) int {
	if size, ok := s.config.PageSizes[key.Tab]; ok && size > 0 {
		return size
	}
	return s.config.DefaultPageSize
}

// Get returns the current state of key. An unseen key reads as an empty list with
// HasMore set and Loading unset.
func (s *Store) Get(key models.CacheKey) models.CachedList {
	e := s.lookup(key)
	if e == nil {
		return models.CachedList{Key: key, HasMore: true}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view(key)
}

// Keys returns every key the store has seen.
func (s *Store) Keys() []models.CacheKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]models.CacheKey, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// FixtureIDs returns the distinct fixtures referenced by the items currently held for key.
func (s *Store) FixtureIDs(key models.CacheKey) []string {
	e := s.lookup(key)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	items := e.items
	e.mu.Unlock()
	return livemerge.FixtureIDs(items)
}

// Leagues returns the distinct leagues referenced by the items currently held for key.
func (s *Store) Leagues(key models.CacheKey) []string {
	e := s.lookup(key)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	items := e.items
	e.mu.Unlock()
	return livemerge.Leagues(items)
}

// IsStale reports whether key was never fetched or its first page is older than ttl.
func (s *Store) IsStale(key models.CacheKey, ttl time.Duration) bool {
	e := s.lookup(key)
	if e == nil {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFetchedAt.IsZero() {
		return true
	}
	return s.now().Sub(e.lastFetchedAt) > ttl
}

// LoadInitial fetches the first page of key and replaces the cached list with it.
// If a fetch for key is already in flight the call waits for that fetch instead.
// On failure the previous items stay in place and the error is recorded on the list.
func (s *Store) LoadInitial(ctx context.Context, key models.CacheKey, filters models.Filters) error {
	e := s.entry(key)
	gen := e.generation()

	fetchCtx := context.WithoutCancel(ctx)
	return s.do(ctx, key, gen, func() error {
		return s.fetchInitial(fetchCtx, key, e, gen, filters)
	})
}

// LoadMore fetches the page following the cached items and appends it. It does
// nothing when the list is known to be complete, and joins the in-flight fetch when
// one is running. On failure HasMore is left as it was.
func (s *Store) LoadMore(ctx context.Context, key models.CacheKey, filters models.Filters) error {
	e := s.entry(key)
	gen := e.generation()

	fetchCtx := context.WithoutCancel(ctx)
	return s.do(ctx, key, gen, func() error {
		return s.fetchMore(fetchCtx, key, e, gen, filters)
	})
}

// ForceReset clears key back to the unseen state. A fetch still in flight for key
// is not cancelled but its result will be discarded.
func (s *Store) ForceReset(key models.CacheKey) {
	e := s.lookup(key)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.reset(s.generations.Add(1))
	version := e.version
	e.mu.Unlock()

	s.logger.Debug().Str("key", key.String()).Msg("cache key reset")
	s.notify(Change{Key: key, Kind: ChangeReset, Version: version})
}

// ResetAll clears every key, e.g. on logout.
func (s *Store) ResetAll() {
	keys := s.Keys()
	for _, key := range keys {
		s.ForceReset(key)
	}

	s.standingsMu.Lock()
	clear(s.standings)
	s.standingsMu.Unlock()

	s.logger.Info().Int("keys", len(keys)).Msg("cache cleared")
}

// ApplySnapshot overlays a fixture snapshot onto every cached item referencing its
// fixture, across all keys. Offsets, HasMore and Loading are left alone. It returns
// the number of items replaced.
func (s *Store) ApplySnapshot(snap models.LiveSnapshot) int {
	s.mu.RLock()
	type keyed struct {
		key models.CacheKey
		e   *entry
	}
	all := make([]keyed, 0, len(s.entries))
	for key, e := range s.entries {
		all = append(all, keyed{key: key, e: e})
	}
	s.mu.RUnlock()

	total := 0
	for _, ke := range all {
		ke.e.mu.Lock()
		items, updated := livemerge.ApplySnapshot(ke.e.items, snap)
		if updated > 0 {
			ke.e.items = items
			ke.e.version++
		}
		version := ke.e.version
		ke.e.mu.Unlock()

		if updated > 0 {
			total += updated
			s.notify(Change{Key: ke.key, Kind: ChangeLive, Version: version})
		}
	}

	s.metrics.ObserveSnapshot(total)
	if total > 0 {
		s.logger.Debug().
			Str("fixture_id", snap.FixtureID).
			Str("status", snap.Status).
			Int("items", total).
			Msg("applied live snapshot")
	}
	return total
}

// ApplyStandings stores the league table carried by snap and writes the table
// positions onto every cached item of that league, across all keys. It returns the
// number of items replaced.
func (s *Store) ApplyStandings(snap models.LiveSnapshot) int {
	if snap.League == "" {
		return 0
	}

	s.standingsMu.Lock()
	s.standings[snap.League] = append([]models.Standing(nil), snap.Standings...)
	s.standingsMu.Unlock()

	s.mu.RLock()
	keys := make([]models.CacheKey, 0, len(s.entries))
	entries := make([]*entry, 0, len(s.entries))
	for key, e := range s.entries {
		keys = append(keys, key)
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	total := 0
	for i, e := range entries {
		e.mu.Lock()
		items, updated := livemerge.ApplyStandings(e.items, snap.League, snap.Standings)
		if updated > 0 {
			e.items = items
			e.version++
		}
		version := e.version
		e.mu.Unlock()

		if updated > 0 {
			total += updated
			s.notify(Change{Key: keys[i], Kind: ChangeLive, Version: version})
		}
	}

	s.metrics.ObserveSnapshot(total)
	s.logger.Debug().
		Str("league", snap.League).
		Int("rows", len(snap.Standings)).
		Int("items", total).
		Msg("applied standings")
	return total
}

// Standings returns the last table received for league, nil when none was.
func (s *Store) Standings(league string) []models.Standing {
	s.standingsMu.RLock()
	defer s.standingsMu.RUnlock()

	rows, ok := s.standings[league]
	if !ok {
		return nil
	}
	return append([]models.Standing{}, rows...)
}

// AddListener registers l for change notifications and returns a function removing it.
func (s *Store) AddListener(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Store) fetchInitial(ctx context.Context, key models.CacheKey, e *entry, gen uint64, filters models.Filters) error {
	limit := s.PageSize(key)

	if !s.begin(key, e, gen) {
		return models.ErrStaleResponse
	}

	start := s.now()
	page, err := s.fetcher.FetchPage(ctx, models.PageRequest{Key: key, Offset: 0, Limit: limit, Filters: filters})
	took := s.now().Sub(start)

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		s.discard(key, metrics.OpInitial, gen, took)
		return models.ErrStaleResponse
	}
	e.loading = false
	// Callers arriving from here on start a fetch of their own instead of joining
	// this one while listeners run.
	s.flights.Forget(flightKey(key, gen))
	if err != nil {
		e.err = err
		e.version++
		version := e.version
		e.mu.Unlock()

		s.failed(key, metrics.OpInitial, 0, err, took)
		s.notify(Change{Key: key, Kind: ChangeState, Version: version})
		return err
	}

	items := livemerge.Dedupe(page.Items)
	e.items = items
	e.offset = len(items)
	e.hasMore = livemerge.HasMore(len(page.Items), limit, e.offset, page.Total)
	e.lastFetchedAt = s.now()
	e.err = nil
	e.version++
	version, offset, hasMore := e.version, e.offset, e.hasMore
	e.mu.Unlock()

	s.metrics.ObserveFetch(metrics.OpInitial, "ok", took)
	s.logger.Debug().
		Str("key", key.String()).
		Int("items", len(items)).
		Int("offset", offset).
		Bool("has_more", hasMore).
		Msg("loaded first page")

	s.notify(Change{Key: key, Kind: ChangeItems, Version: version})
	return nil
}

func (s *Store) fetchMore(ctx context.Context, key models.CacheKey, e *entry, gen uint64, filters models.Filters) error {
	limit := s.PageSize(key)

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return models.ErrStaleResponse
	}
	if !e.hasMore {
		e.mu.Unlock()
		return nil
	}
	offset := e.offset
	e.mu.Unlock()

	if !s.begin(key, e, gen) {
		return models.ErrStaleResponse
	}

	start := s.now()
	page, err := s.fetcher.FetchPage(ctx, models.PageRequest{Key: key, Offset: offset, Limit: limit, Filters: filters})
	took := s.now().Sub(start)

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		s.discard(key, metrics.OpMore, gen, took)
		return models.ErrStaleResponse
	}
	e.loading = false
	s.flights.Forget(flightKey(key, gen))
	if err != nil {
		e.err = err
		e.version++
		version := e.version
		e.mu.Unlock()

		s.failed(key, metrics.OpMore, offset, err, took)
		s.notify(Change{Key: key, Kind: ChangeState, Version: version})
		return err
	}

	items, appended := livemerge.AppendUnique(e.items, page.Items)
	e.items = items
	e.offset += appended
	e.hasMore = livemerge.HasMore(len(page.Items), limit, e.offset, page.Total)
	e.err = nil
	e.version++
	version, newOffset, hasMore := e.version, e.offset, e.hasMore
	e.mu.Unlock()

	s.metrics.ObserveFetch(metrics.OpMore, "ok", took)
	s.logger.Debug().
		Str("key", key.String()).
		Int("appended", appended).
		Int("offset", newOffset).
		Bool("has_more", hasMore).
		Msg("loaded next page")

	s.notify(Change{Key: key, Kind: ChangeItems, Version: version})
	return nil
}

// do runs fn at most once per key and generation at a time. Callers arriving while
// the fetch is in flight share its result; the flight is dropped as soon as the
// response is applied, so callers arriving while listeners run start a new one.
// The caller stops waiting when ctx ends; fn keeps going.
func (s *Store) do(ctx context.Context, key models.CacheKey, gen uint64, fn func() error) error {
	ch := s.flights.DoChan(flightKey(key, gen), func() (interface{}, error) {
		return nil, fn()
	})

	select {
	case res := <-ch:
		if errors.Is(res.Err, models.ErrStaleResponse) {
			return nil
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func flightKey(key models.CacheKey, gen uint64) string {
	return key.String() + "#" + strconv.FormatUint(gen, 10)
}

// begin marks e as loading if it is still on generation gen.
func (s *Store) begin(key models.CacheKey, e *entry, gen uint64) bool {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return false
	}
	e.loading = true
	e.version++
	version := e.version
	e.mu.Unlock()

	s.notify(Change{Key: key, Kind: ChangeState, Version: version})
	return true
}

func (s *Store) discard(key models.CacheKey, op string, gen uint64, took time.Duration) {
	s.metrics.ObserveFetch(op, "stale", took)
	s.metrics.IncStaleDiscarded()
	s.logger.Debug().
		Str("key", key.String()).
		Str("op", op).
		Uint64("generation", gen).
		Msg("discarded response for reset key")
}

func (s *Store) failed(key models.CacheKey, op string, offset int, err error, took time.Duration) {
	s.metrics.ObserveFetch(op, "error", took)
	s.logger.Warn().
		Err(err).
		Str("key", key.String()).
		Str("op", op).
		Int("offset", offset).
		Bool("transient", models.IsTransient(err)).
		Msg("page fetch failed")
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l.ListChanged(change)
	}
}

func (s *Store) lookup(key models.CacheKey) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

// entry returns the entry for key, creating it on first use.
func (s *Store) entry(key models.CacheKey) *entry {
	if e := s.lookup(key); e != nil {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e
	}
	e := &entry{gen: s.generations.Add(1), hasMore: true}
	s.entries[key] = e
	return e
}

func (e *entry) generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// reset must be called with e.mu held.
func (e *entry) reset(gen uint64) {
	e.gen = gen
	e.items = nil
	e.offset = 0
	e.hasMore = true
	e.lastFetchedAt = time.Time{}
	e.loading = false
	e.err = nil
	e.version++
}

// view must be called with e.mu held.
func (e *entry) view(key models.CacheKey) models.CachedList {
	return models.CachedList{
		Key:           key,
		Items:         e.items,
		Offset:        e.offset,
		HasMore:       e.hasMore,
		LastFetchedAt: e.lastFetchedAt,
		Loading:       e.loading,
		Err:           e.err,
		Version:       e.version,
	}
}
