package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/cypherlabdev/bet-sync-service/internal/cache"
	"github.com/cypherlabdev/bet-sync-service/internal/config"
	"github.com/cypherlabdev/bet-sync-service/internal/coordinator"
	"github.com/cypherlabdev/bet-sync-service/internal/models"
	"github.com/cypherlabdev/bet-sync-service/internal/view"
)

// SyncService ties the cache store and the live subscription coordinator together
// and hands out views to the presentation layer
type SyncService struct {
	store       *cache.Store
	coordinator *coordinator.Coordinator
	config      config.SyncConfig
	pingers     map[string]Pinger
	logger      zerolog.Logger
}

// SubscriptionStatus reports the state of live topic subscriptions
type SubscriptionStatus struct {
	Active     []string          `json:"active"`
	References map[string]int    `json:"references"`
	Lists      []string          `json:"lists"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// NewSyncService creates a new sync service. pingers are checked by Ready, keyed by
// the name reported when one fails.
func NewSyncService(
	store *cache.Store,
	coord *coordinator.Coordinator,
	cfg config.SyncConfig,
	pingers map[string]Pinger,
	logger zerolog.Logger,
) *SyncService {
	return &SyncService{
		store:       store,
		coordinator: coord,
		config:      cfg,
		pingers:     pingers,
		logger:      logger.With().Str("component", "sync_service").Logger(),
	}
}

// View returns the view of key, fetching with filters
func (s *SyncService) View(key models.CacheKey, filters models.Filters) *view.View {
	return view.New(s.store, key, filters)
}

// TTLFor returns how long the first page of key is considered fresh
func (s *SyncService) TTLFor(key models.CacheKey) time.Duration {
	return s.config.TTLFor(key)
}

// Watch calls fn with the current state of key after every change to it, until the
// returned function is called. fn runs on the goroutine that made the change and
// must not block.
func (s *SyncService) Watch(key models.CacheKey, fn func(list models.CachedList)) func() {
	return s.store.AddListener(cache.ListenerFunc(func(change cache.Change) {
		if change.Key != key {
			return
		}
		fn(s.store.Get(key))
	}))
}

// Subscriptions returns the topics currently subscribed, how many cached lists
// reference each topic, the cached lists and the topics whose subscription failed.
// A referenced topic missing from Active is still being subscribed or has failed.
func (s *SyncService) Subscriptions() SubscriptionStatus {
	lists := lo.Map(s.store.Keys(), func(key models.CacheKey, _ int) string {
		return key.String()
	})
	sort.Strings(lists)

	status := SubscriptionStatus{
		Active:     s.coordinator.ActiveTopics(),
		References: s.coordinator.References(),
		Lists:      lists,
	}

	errs := s.coordinator.SubscriptionErrors()
	if len(errs) > 0 {
		status.Errors = make(map[string]string, len(errs))
		for topic, err := range errs {
			status.Errors[topic] = err.Error()
		}
	}
	return status
}

// Logout drops every cached list. In-flight fetches finish but their results are discarded.
func (s *SyncService) Logout() {
	s.store.ResetAll()
	s.logger.Info().Msg("session reset")
}

// Ready returns an error naming the first backing dependency that cannot be reached
func (s *SyncService) Ready(ctx context.Context) error {
	for name, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s unavailable: %w", name, err)
		}
	}
	return nil
}

// Close releases every live subscription
func (s *SyncService) Close() {
	s.coordinator.Close()
}
