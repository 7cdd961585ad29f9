package models

import (
	"time"
)

// LiveSnapshot is the full current state of one realtime topic. It always replaces
// whatever was delivered before for that topic; it is never a delta, so a field it
// does not carry is empty upstream. Fixture topics fill FixtureID and the live fields,
// standings topics fill League and Standings.
type LiveSnapshot struct {
	Topic     string       `json:"topic"`
	FixtureID string       `json:"fixture_id,omitempty"`
	League    string       `json:"league,omitempty"`
	Status    string       `json:"status,omitempty"`
	Score     *Score       `json:"score,omitempty"`
	Elapsed   *int         `json:"elapsed,omitempty"`
	Events    []MatchEvent `json:"events,omitempty"`
	Standings []Standing   `json:"standings,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Standing is one row of a league table pushed on a standings topic.
type Standing struct {
	Rank     int    `json:"rank"`
	Team     string `json:"team"`
	Played   int    `json:"played"`
	Won      int    `json:"won"`
	Drawn    int    `json:"drawn"`
	Lost     int    `json:"lost"`
	GoalDiff int    `json:"goal_diff"`
	Points   int    `json:"points"`
}

// SnapshotBatchMessage is the Kafka message produced by the upstream score feed
type SnapshotBatchMessage struct {
	Snapshots []LiveSnapshot `json:"snapshots"`
	Timestamp time.Time      `json:"timestamp"`
	BatchID   string         `json:"batch_id"`
}
