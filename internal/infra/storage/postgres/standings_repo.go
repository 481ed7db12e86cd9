package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/storage"
)

// StandingsRepo runs against either the pooled connection or a
// transaction; the unit of work rebinds it with the active *sqlx.Tx.
type StandingsRepo struct {
	ext sqlx.ExtContext
}

func NewStandingsRepo(db *DB) *StandingsRepo { return &StandingsRepo{ext: db.DB} }

func newTxStandingsRepo(tx *sqlx.Tx) *StandingsRepo { return &StandingsRepo{ext: tx} }

func (r *StandingsRepo) Find(ctx context.Context, f storage.StandingsFilter) ([]*domain.StandingsEntry, error) {
	query := `
		SELECT league_id, season_id, entity_id, kind, name, rank, played, won, drawn, lost,
		       goals_for, goals_against, goal_diff, points, auto_computed, last_updated
		FROM standings
		WHERE league_id = $1 AND season_id = $2
	`
	args := []any{f.LeagueID, f.SeasonID}

	if f.EntityID != "" {
		args = append(args, f.EntityID)
		query += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}
	query += " ORDER BY rank ASC"

	var entries []*domain.StandingsEntry
	if err := sqlx.SelectContext(ctx, r.ext, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	return entries, nil
}

func (r *StandingsRepo) BulkUpsert(ctx context.Context, entries []*domain.StandingsEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO standings (league_id, season_id, entity_id, kind, name, rank, played, won,
		                       drawn, lost, goals_for, goals_against, goal_diff, points,
		                       auto_computed, last_updated)
		VALUES (:league_id, :season_id, :entity_id, :kind, :name, :rank, :played, :won,
		        :drawn, :lost, :goals_for, :goals_against, :goal_diff, :points,
		        :auto_computed, :last_updated)
		ON CONFLICT (league_id, season_id, entity_id) DO UPDATE SET
			kind          = EXCLUDED.kind,
			name          = EXCLUDED.name,
			rank          = EXCLUDED.rank,
			played        = EXCLUDED.played,
			won           = EXCLUDED.won,
			drawn         = EXCLUDED.drawn,
			lost          = EXCLUDED.lost,
			goals_for     = EXCLUDED.goals_for,
			goals_against = EXCLUDED.goals_against,
			goal_diff     = EXCLUDED.goal_diff,
			points        = EXCLUDED.points,
			auto_computed = EXCLUDED.auto_computed,
			last_updated  = EXCLUDED.last_updated
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, entries); err != nil {
		return fmt.Errorf("failed to upsert standings: %w", err)
	}
	return nil
}

func (r *StandingsRepo) Delete(ctx context.Context, f storage.StandingsFilter) error {
	query := "DELETE FROM standings WHERE league_id = $1 AND season_id = $2"
	args := []any{f.LeagueID, f.SeasonID}

	if f.EntityID != "" {
		args = append(args, f.EntityID)
		query += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}

	if _, err := r.ext.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete standings: %w", err)
	}
	return nil
}
