package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one row of a cached list: a placed bet linked to the fixture it was placed on.
// Items are value snapshots; merges build a new Item instead of mutating a cached one.
type Item struct {
	ID              string          `json:"id"`
	FixtureID       string          `json:"fixture_id"`
	League          string          `json:"league,omitempty"`
	HomeTeam        string          `json:"home_team,omitempty"`
	AwayTeam        string          `json:"away_team,omitempty"`
	Market          string          `json:"market"`
	Prediction      string          `json:"prediction"`
	Stake           decimal.Decimal `json:"stake"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Result          string          `json:"result"` // pending, won, lost, void
	PlacedAt        time.Time       `json:"placed_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`

	// Live fields, overwritten by fixture snapshots.
	Status  string       `json:"status"`
	Score   *Score       `json:"score,omitempty"`
	Elapsed *int         `json:"elapsed,omitempty"`
	Events  []MatchEvent `json:"events,omitempty"`

	// League table positions, overwritten by standings snapshots.
	HomeRank *int `json:"home_rank,omitempty"`
	AwayRank *int `json:"away_rank,omitempty"`
}

// Score is the current score of a fixture.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// MatchEvent is a single in-play incident (goal, card, substitution).
type MatchEvent struct {
	Minute int    `json:"minute"`
	Type   string `json:"type"`
	Team   string `json:"team"`
	Player string `json:"player,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Bet results
const (
	ResultPending = "pending"
	ResultWon     = "won"
	ResultLost    = "lost"
	ResultVoid    = "void"
)

// Fixture status codes as pushed by the score feed
const (
	StatusNotStarted = "NS"
	StatusLive       = "LIVE"
	StatusHalfTime   = "HT"
	StatusFullTime   = "FT"
	StatusPostponed  = "PST"
	StatusCancelled  = "CANC"
)
