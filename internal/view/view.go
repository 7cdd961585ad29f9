package view

import (
	"context"
	"time"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// Store is what a view needs from the cache store
type Store interface {
	Get(key models.CacheKey) models.CachedList
	LoadInitial(ctx context.Context, key models.CacheKey, filters models.Filters) error
	LoadMore(ctx context.Context, key models.CacheKey, filters models.Filters) error
	IsStale(key models.CacheKey, ttl time.Duration) bool
	ForceReset(key models.CacheKey)
	Leagues(key models.CacheKey) []string
	Standings(league string) []models.Standing
}

// View is the read side handed to presentation code for one cache key. It holds no
// state of its own; every read goes to the store.
type View struct {
	store   Store
	key     models.CacheKey
	filters models.Filters
}

// New creates a view of key on store
func New(store Store, key models.CacheKey, filters models.Filters) *View {
	return &View{store: store, key: key, filters: filters}
}

func (v *View) Key() models.CacheKey {
	return v.key
}

// Snapshot returns every field of the list from one consistent read.
func (v *View) Snapshot() models.CachedList {
	return v.store.Get(v.key)
}

func (v *View) Items() []models.Item {
	return v.store.Get(v.key).Items
}

func (v *View) Loading() bool {
	return v.store.Get(v.key).Loading
}

func (v *View) HasMore() bool {
	return v.store.Get(v.key).HasMore
}

// Err returns the error of the last failed fetch, nil once a fetch succeeds.
func (v *View) Err() error {
	return v.store.Get(v.key).Err
}

// Standings returns the league tables received so far for the leagues of the list,
// keyed by league. Leagues without a table yet are left out.
func (v *View) Standings() map[string][]models.Standing {
	out := make(map[string][]models.Standing)
	for _, league := range v.store.Leagues(v.key) {
		if rows := v.store.Standings(league); rows != nil {
			out[league] = rows
		}
	}
	return out
}

// Refresh throws the cached list away and loads the first page again.
func (v *View) Refresh(ctx context.Context) error {
	v.store.ForceReset(v.key)
	return v.store.LoadInitial(ctx, v.key, v.filters)
}

// LoadMore loads the next page.
func (v *View) LoadMore(ctx context.Context) error {
	return v.store.LoadMore(ctx, v.key, v.filters)
}

// EnsureFresh loads the first page only when the cached one is missing or older than ttl.
func (v *View) EnsureFresh(ctx context.Context, ttl time.Duration) error {
	if !v.store.IsStale(v.key, ttl) {
		return nil
	}
	return v.store.LoadInitial(ctx, v.key, v.filters)
}
