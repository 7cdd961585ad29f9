package models

import (
	"strings"
	"time"
)

// CacheKey identifies one independent paginated list: a primary tab and an optional sub-tab.
type CacheKey struct {
	Tab    string
	SubTab string
}

// NewCacheKey builds a key from a tab and an optional sub-tab.
func NewCacheKey(tab string, subTab ...string) CacheKey {
	key := CacheKey{Tab: tab}
	if len(subTab) > 0 {
		key.SubTab = subTab[0]
	}
	return key
}

// ParseCacheKey is the inverse of CacheKey.String.
func ParseCacheKey(s string) CacheKey {
	tab, subTab, _ := strings.Cut(s, "/")
	return CacheKey{Tab: tab, SubTab: subTab}
}

// String renders the key as "tab" or "tab/subtab".
func (k CacheKey) String() string {
	if k.SubTab == "" {
		return k.Tab
	}
	return k.Tab + "/" + k.SubTab
}

// Filters are opaque query filters passed through to the page fetcher.
type Filters map[string]string

// PageRequest is a single paginated query against the bets API.
type PageRequest struct {
	Key     CacheKey
	Offset  int
	Limit   int
	Filters Filters
}

// Page is one page returned by the bets API, in server order.
type Page struct {
	Items []Item `json:"items"`
	Total *int   `json:"total,omitempty"`
}

// CachedList is a read-only view of one cache key.
//
// Items must not be modified by callers: the store never mutates a slice it has
// handed out, it swaps in a new one, so Items identity (and Version) changes on
// every update.
type CachedList struct {
	Key           CacheKey  `json:"key"`
	Items         []Item    `json:"items"`
	Offset        int       `json:"offset"`
	HasMore       bool      `json:"has_more"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
	Loading       bool      `json:"loading"`
	Err           error     `json:"-"`
	Version       uint64    `json:"version"`
}
