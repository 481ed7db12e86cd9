package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/storage"
	"github.com/tabellenwerk/standings/internal/standings/cache"
	"github.com/tabellenwerk/standings/internal/standings/faults"
)

// Engine computes league tables from match results. Calculation is
// cache-first; a recomputation persists the whole table in one
// transaction so no partial table is ever visible.
type Engine struct {
	matches   storage.MatchRepository
	standings storage.StandingsRepository
	txm       storage.TransactionManager
	cache     *cache.Cache
	log       *slog.Logger
}

// New creates an Engine. The cache may be backed by nothing; calculation
// correctness never depends on it.
func New(
	matches storage.MatchRepository,
	standings storage.StandingsRepository,
	txm storage.TransactionManager,
	c *cache.Cache,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{matches: matches, standings: standings, txm: txm, cache: c, log: log}
}

// CalculateTable returns the current standings for a target, recomputing
// and persisting them when no unexpired cached table exists.
func (e *Engine) CalculateTable(ctx context.Context, leagueID, seasonID string) ([]*domain.StandingsEntry, error) {
	if leagueID == "" || seasonID == "" {
		return nil, faults.New(faults.TypeValidation, faults.OpCalculate,
			"league and season ids are required").WithTarget(leagueID, seasonID)
	}

	if cached, ok := e.cache.GetTable(ctx, leagueID, seasonID); ok {
		return cached, nil
	}

	e.log.Debug("recomputing table", "league", leagueID, "season", seasonID)
	start := time.Now()

	matches, err := e.matches.Find(ctx, storage.MatchFilter{
		LeagueID:      leagueID,
		SeasonID:      seasonID,
		CountableOnly: true,
	})
	if err != nil {
		return nil, faults.Classify(fmt.Errorf("failed to load matches: %w", err), faults.OpCalculate).
			WithTarget(leagueID, seasonID)
	}

	entries := Tabulate(leagueID, seasonID, matches)

	// Persist the whole table atomically. Any failure aborts the unit of
	// work and the previous table stays intact.
	err = e.txm.RunInTx(ctx, func(ctx context.Context, repos storage.TxRepos) error {
		return repos.Standings.BulkUpsert(ctx, entries)
	})
	if err != nil {
		return nil, faults.Classify(fmt.Errorf("failed to persist table: %w", err), faults.OpCalculate).
			WithTarget(leagueID, seasonID)
	}

	e.cache.SetTable(ctx, leagueID, seasonID, entries)
	e.cache.InvalidateTeamStats(ctx, leagueID, seasonID)

	e.log.Info("table recomputed",
		"league", leagueID, "season", seasonID,
		"entries", len(entries), "duration", time.Since(start))
	return entries, nil
}

// Recalculate drops the cached table for a target and recomputes it.
// Result-changing triggers go through here so a new finished match is
// never masked by an unexpired cached table.
func (e *Engine) Recalculate(ctx context.Context, leagueID, seasonID string) ([]*domain.StandingsEntry, error) {
	if leagueID == "" || seasonID == "" {
		return nil, faults.New(faults.TypeValidation, faults.OpCalculate,
			"league and season ids are required").WithTarget(leagueID, seasonID)
	}
	e.cache.InvalidateTarget(ctx, leagueID, seasonID)
	return e.CalculateTable(ctx, leagueID, seasonID)
}

// TeamStats returns one participant's aggregates, derived by the same
// rule restricted to that participant. Independently cached with a
// longer TTL than the full table.
func (e *Engine) TeamStats(ctx context.Context, leagueID, seasonID, entityID string) (*domain.StandingsEntry, error) {
	if leagueID == "" || seasonID == "" || entityID == "" {
		return nil, faults.New(faults.TypeValidation, faults.OpTeamStats,
			"league, season and entity ids are required").WithTarget(leagueID, seasonID)
	}

	if cached, ok := e.cache.GetTeamStats(ctx, leagueID, seasonID, entityID); ok {
		return cached, nil
	}

	matches, err := e.matches.Find(ctx, storage.MatchFilter{
		LeagueID:      leagueID,
		SeasonID:      seasonID,
		EntityID:      entityID,
		CountableOnly: true,
	})
	if err != nil {
		return nil, faults.Classify(fmt.Errorf("failed to load matches: %w", err), faults.OpTeamStats).
			WithTarget(leagueID, seasonID)
	}

	table := Tabulate(leagueID, seasonID, matches)
	for _, entry := range table {
		if entry.EntityID == entityID {
			entry.Rank = 0 // rank is only meaningful against the full table
			e.cache.SetTeamStats(ctx, leagueID, seasonID, entry)
			return entry, nil
		}
	}

	return nil, faults.New(faults.TypeMissingData, faults.OpTeamStats,
		fmt.Sprintf("no finished matches for entity %s", entityID)).WithTarget(leagueID, seasonID)
}

// Tabulate aggregates countable matches into a ranked table. Every
// participant that appears in a finished match gets an entry, zeroed
// stats included. A win is strictly more goals than the opponent; three
// points for a win, one for a draw.
func Tabulate(leagueID, seasonID string, matches []*domain.Match) []*domain.StandingsEntry {
	now := time.Now()
	byEntity := make(map[string]*domain.StandingsEntry)

	ensure := func(id, name string, kind domain.EntityKind) *domain.StandingsEntry {
		if e, ok := byEntity[id]; ok {
			return e
		}
		e := &domain.StandingsEntry{
			LeagueID:     leagueID,
			SeasonID:     seasonID,
			EntityID:     id,
			Kind:         kind,
			Name:         name,
			AutoComputed: true,
			LastUpdated:  now,
		}
		byEntity[id] = e
		return e
	}

	for _, m := range matches {
		if !m.Countable() {
			continue
		}
		home := ensure(m.HomeID, m.HomeName, m.Kind)
		away := ensure(m.AwayID, m.AwayName, m.Kind)
		hg, ag := *m.HomeGoals, *m.AwayGoals

		home.Played++
		away.Played++
		home.GoalsFor += hg
		home.GoalsAgainst += ag
		away.GoalsFor += ag
		away.GoalsAgainst += hg

		switch {
		case hg > ag:
			home.Won++
			away.Lost++
		case hg < ag:
			away.Won++
			home.Lost++
		default:
			home.Drawn++
			away.Drawn++
		}
	}

	entries := make([]*domain.StandingsEntry, 0, len(byEntity))
	for _, e := range byEntity {
		e.Derive()
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
	for i, e := range entries {
		e.Rank = i + 1
	}
	return entries
}

// Less is the table comparator: points desc, goal difference desc, goals
// for desc, then name ascending as the final deterministic tie-break.
func Less(a, b *domain.StandingsEntry) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.GoalDiff != b.GoalDiff {
		return a.GoalDiff > b.GoalDiff
	}
	if a.GoalsFor != b.GoalsFor {
		return a.GoalsFor > b.GoalsFor
	}
	return a.Name < b.Name
}
