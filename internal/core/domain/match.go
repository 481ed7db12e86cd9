package domain

import "time"

// EntityKind distinguishes the two participant types a league can hold.
type EntityKind string

const (
	EntityKindTeam EntityKind = "team"
	EntityKindClub EntityKind = "club"
)

// Match is a single fixture between two participants. Scores are pointers
// because an unplayed or abandoned match has none; only finished matches
// with both scores present count towards standings.
type Match struct {
	ID       string `json:"id"        db:"id"`
	LeagueID string `json:"league_id" db:"league_id"`
	SeasonID string `json:"season_id" db:"season_id"`

	HomeID   string     `json:"home_id"   db:"home_id"`
	HomeName string     `json:"home_name" db:"home_name"`
	AwayID   string     `json:"away_id"   db:"away_id"`
	AwayName string     `json:"away_name" db:"away_name"`
	Kind     EntityKind `json:"kind"      db:"kind"`

	HomeGoals *int `json:"home_goals,omitempty" db:"home_goals"`
	AwayGoals *int `json:"away_goals,omitempty" db:"away_goals"`

	Finished bool      `json:"finished"  db:"finished"`
	PlayedAt time.Time `json:"played_at" db:"played_at"`
}

// Countable reports whether the match contributes to standings.
func (m *Match) Countable() bool {
	return m.Finished && m.HomeGoals != nil && m.AwayGoals != nil
}
