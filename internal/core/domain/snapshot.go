package domain

import "time"

// Snapshot is a point-in-time copy of one target's standings, stored as a
// blob. Checksum, when set, must match the recomputed checksum of the
// stored bytes before a restore is accepted.
type Snapshot struct {
	ID          string    `json:"id"`
	LeagueID    string    `json:"league_id"`
	SeasonID    string    `json:"season_id"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`

	// PreRestore marks automatic backups taken before a restore; restoring
	// such a snapshot does not trigger another backup.
	PreRestore bool `json:"pre_restore"`
}
