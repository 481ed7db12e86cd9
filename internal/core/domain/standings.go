package domain

import "time"

// StandingsEntry is one participant's aggregated record and rank within a
// league table. For a fixed (leagueID, seasonID) ranks are a contiguous
// 1..N permutation; ties are broken deterministically by the engine.
type StandingsEntry struct {
	LeagueID string     `json:"league_id" db:"league_id"`
	SeasonID string     `json:"season_id" db:"season_id"`
	EntityID string     `json:"entity_id" db:"entity_id"`
	Kind     EntityKind `json:"kind"      db:"kind"`
	Name     string     `json:"name"      db:"name"`

	Rank         int `json:"rank"          db:"rank"`
	Played       int `json:"played"        db:"played"`
	Won          int `json:"won"           db:"won"`
	Drawn        int `json:"drawn"         db:"drawn"`
	Lost         int `json:"lost"          db:"lost"`
	GoalsFor     int `json:"goals_for"     db:"goals_for"`
	GoalsAgainst int `json:"goals_against" db:"goals_against"`
	GoalDiff     int `json:"goal_diff"     db:"goal_diff"`
	Points       int `json:"points"        db:"points"`

	// AutoComputed is false for rows that were migrated or edited by hand.
	AutoComputed bool      `json:"auto_computed" db:"auto_computed"`
	LastUpdated  time.Time `json:"last_updated"  db:"last_updated"`
}

// Derive recomputes the derived columns from the raw tallies.
// Three points for a win, one for a draw.
func (e *StandingsEntry) Derive() {
	e.GoalDiff = e.GoalsFor - e.GoalsAgainst
	e.Points = 3*e.Won + 1*e.Drawn
}
