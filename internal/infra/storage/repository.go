package storage

import (
	"context"
	"errors"

	"github.com/tabellenwerk/standings/internal/core/domain"
)

var (
	// ErrJobNotFound is returned when a job record doesn't exist
	ErrJobNotFound = errors.New("job not found")
)

// MatchFilter narrows match queries. CountableOnly selects finished
// matches that have both scores present.
type MatchFilter struct {
	LeagueID      string
	SeasonID      string
	EntityID      string
	CountableOnly bool
}

// StandingsFilter narrows standings queries.
type StandingsFilter struct {
	LeagueID string
	SeasonID string
	EntityID string
}

// MatchRepository handles match read access
type MatchRepository interface {
	// Find retrieves matches matching the filter, oldest first
	Find(ctx context.Context, f MatchFilter) ([]*domain.Match, error)

	// Save saves a match (used by tests and seed tooling)
	Save(ctx context.Context, m *domain.Match) error
}

// StandingsRepository handles standings storage operations
type StandingsRepository interface {
	// Find retrieves standings entries matching the filter, rank ascending
	Find(ctx context.Context, f StandingsFilter) ([]*domain.StandingsEntry, error)

	// BulkUpsert inserts or updates all entries in one batch
	BulkUpsert(ctx context.Context, entries []*domain.StandingsEntry) error

	// Delete removes all entries matching the filter
	Delete(ctx context.Context, f StandingsFilter) error
}

// JobRepository persists calculation job records. The queue manager owns
// the working state; the repository is the durable trail behind it.
type JobRepository interface {
	// Save inserts or replaces a job record
	Save(ctx context.Context, job *domain.CalculationJob) error

	// GetByID retrieves a job record
	GetByID(ctx context.Context, id string) (*domain.CalculationJob, error)

	// History retrieves recent jobs for a league, newest first
	History(ctx context.Context, leagueID string, limit int) ([]*domain.CalculationJob, error)

	// DeleteByIDs removes job records (retention trimming)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// TxRepos is the repository set bound to one transaction.
type TxRepos struct {
	Standings StandingsRepository
}

// TransactionManager runs a function inside a single database
// transaction; any error rolls the whole unit of work back.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error
}
