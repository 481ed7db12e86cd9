package postgres

import (
	"context"
	"fmt"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/storage"
)

type MatchRepo struct {
	db *DB
}

func NewMatchRepo(db *DB) *MatchRepo { return &MatchRepo{db: db} }

func (r *MatchRepo) Find(ctx context.Context, f storage.MatchFilter) ([]*domain.Match, error) {
	query := `
		SELECT id, league_id, season_id, home_id, home_name, away_id, away_name,
		       kind, home_goals, away_goals, finished, played_at
		FROM matches
		WHERE league_id = $1 AND season_id = $2
	`
	args := []any{f.LeagueID, f.SeasonID}

	if f.CountableOnly {
		query += " AND finished = TRUE AND home_goals IS NOT NULL AND away_goals IS NOT NULL"
	}
	if f.EntityID != "" {
		args = append(args, f.EntityID)
		query += fmt.Sprintf(" AND (home_id = $%d OR away_id = $%d)", len(args), len(args))
	}
	query += " ORDER BY played_at ASC, id ASC"

	var matches []*domain.Match
	if err := r.db.SelectContext(ctx, &matches, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	return matches, nil
}

func (r *MatchRepo) Save(ctx context.Context, m *domain.Match) error {
	query := `
		INSERT INTO matches (id, league_id, season_id, home_id, home_name, away_id, away_name,
		                     kind, home_goals, away_goals, finished, played_at)
		VALUES (:id, :league_id, :season_id, :home_id, :home_name, :away_id, :away_name,
		        :kind, :home_goals, :away_goals, :finished, :played_at)
		ON CONFLICT (id) DO UPDATE SET
			home_goals = EXCLUDED.home_goals,
			away_goals = EXCLUDED.away_goals,
			finished   = EXCLUDED.finished,
			played_at  = EXCLUDED.played_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}
