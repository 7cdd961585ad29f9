// Package livemerge holds the pure list algorithms behind the bet cache: page
// deduplication and overlaying live fixture and league standings snapshots onto
// cached items.
package livemerge

import (
	"slices"

	"github.com/samber/lo"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// Overlay returns a copy of item with its live fields replaced by those of snap.
// A snapshot is the whole current state of its fixture: a score, elapsed time or
// event list it does not carry is cleared on the item. Only the status survives a
// snapshot without one. Non-live fields are never touched.
func Overlay(item models.Item, snap models.LiveSnapshot) models.Item {
	out := item
	if snap.Status != "" {
		out.Status = snap.Status
	}

	out.Score = nil
	if snap.Score != nil {
		score := *snap.Score
		out.Score = &score
	}
	out.Elapsed = nil
	if snap.Elapsed != nil {
		elapsed := *snap.Elapsed
		out.Elapsed = &elapsed
	}
	// Nil and empty both mean no events.
	out.Events = nil
	if len(snap.Events) > 0 {
		out.Events = append([]models.MatchEvent(nil), snap.Events...)
	}
	return out
}

// Changes reports whether overlaying snap would alter any live field of item.
func Changes(item models.Item, snap models.LiveSnapshot) bool {
	if snap.Status != "" && snap.Status != item.Status {
		return true
	}
	if !equalPtr(item.Score, snap.Score) || !equalPtr(item.Elapsed, snap.Elapsed) {
		return true
	}
	return !slices.Equal(item.Events, snap.Events)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ApplySnapshot overlays snap onto every item of items that references snap.FixtureID
// and whose live fields differ from it. When nothing changes, items is returned as is
// with a zero count; otherwise the result is a new slice and items is left untouched.
func ApplySnapshot(items []models.Item, snap models.LiveSnapshot) ([]models.Item, int) {
	if snap.FixtureID == "" {
		return items, 0
	}

	var out []models.Item
	updated := 0
	for i := range items {
		if items[i].FixtureID != snap.FixtureID || !Changes(items[i], snap) {
			continue
		}
		if out == nil {
			out = make([]models.Item, len(items))
			copy(out, items)
		}
		out[i] = Overlay(items[i], snap)
		updated++
	}

	if updated == 0 {
		return items, 0
	}
	return out, updated
}

// Dedupe drops repeated IDs from a page, keeping the first occurrence in server order.
func Dedupe(page []models.Item) []models.Item {
	return lo.UniqBy(page, func(item models.Item) string {
		return item.ID
	})
}

// AppendUnique returns a new slice holding existing followed by the items of page whose
// IDs are not already present. Items already cached are skipped rather than replaced so
// that live fields merged into them survive a later page. The second result is the number
// of appended items.
func AppendUnique(existing, page []models.Item) ([]models.Item, int) {
	seen := make(map[string]struct{}, len(existing)+len(page))
	for _, item := range existing {
		seen[item.ID] = struct{}{}
	}

	out := make([]models.Item, len(existing), len(existing)+len(page))
	copy(out, existing)

	appended := 0
	for _, item := range page {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
		appended++
	}
	return out, appended
}

// FixtureIDs returns the distinct non-empty fixture IDs referenced by items, in first-seen order.
func FixtureIDs(items []models.Item) []string {
	ids := lo.FilterMap(items, func(item models.Item, _ int) (string, bool) {
		return item.FixtureID, item.FixtureID != ""
	})
	return lo.Uniq(ids)
}

// Leagues returns the distinct non-empty leagues referenced by items, in first-seen order.
func Leagues(items []models.Item) []string {
	leagues := lo.FilterMap(items, func(item models.Item, _ int) (string, bool) {
		return item.League, item.League != ""
	})
	return lo.Uniq(leagues)
}

// ApplyStandings writes the table positions of rows onto every item of league. A team
// missing from the table loses its position. Like ApplySnapshot, items is never
// modified: a new slice is returned when something changed, with the number of
// items replaced.
func ApplyStandings(items []models.Item, league string, rows []models.Standing) ([]models.Item, int) {
	if league == "" {
		return items, 0
	}

	ranks := lo.SliceToMap(rows, func(row models.Standing) (string, int) {
		return row.Team, row.Rank
	})
	rankOf := func(team string) *int {
		if rank, ok := ranks[team]; ok {
			return &rank
		}
		return nil
	}

	var out []models.Item
	updated := 0
	for i := range items {
		if items[i].League != league {
			continue
		}
		home, away := rankOf(items[i].HomeTeam), rankOf(items[i].AwayTeam)
		if equalPtr(items[i].HomeRank, home) && equalPtr(items[i].AwayRank, away) {
			continue
		}
		if out == nil {
			out = make([]models.Item, len(items))
			copy(out, items)
		}
		out[i].HomeRank = home
		out[i].AwayRank = away
		updated++
	}

	if updated == 0 {
		return items, 0
	}
	return out, updated
}

// HasMore decides whether another page may exist after a fetch that asked for limit
// items, got received of them, and left the list at offset.
func HasMore(received, limit, offset int, total *int) bool {
	if received < limit {
		return false
	}
	if total != nil && offset >= *total {
		return false
	}
	return true
}
