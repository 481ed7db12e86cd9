package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/storage"
)

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo { return &JobRepo{db: db} }

// jobRow adds the JSON-encoded error history to the domain struct for
// scanning; the domain keeps it as a slice.
type jobRow struct {
	domain.CalculationJob
	ErrorsJSON []byte `db:"errors"`
}

func (r *JobRepo) Save(ctx context.Context, job *domain.CalculationJob) error {
	errsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode job errors: %w", err)
	}

	query := `
		INSERT INTO calculation_jobs (id, league_id, season_id, priority, status, trigger,
		                              description, created_at, started_at, completed_at,
		                              retry_count, max_retries, next_retry_at, timeout_count, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status        = EXCLUDED.status,
			started_at    = EXCLUDED.started_at,
			completed_at  = EXCLUDED.completed_at,
			retry_count   = EXCLUDED.retry_count,
			next_retry_at = EXCLUDED.next_retry_at,
			timeout_count = EXCLUDED.timeout_count,
			errors        = EXCLUDED.errors
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.LeagueID, job.SeasonID, int(job.Priority), string(job.Status),
		job.Trigger, job.Description, job.CreatedAt, job.StartedAt, job.CompletedAt,
		job.RetryCount, job.MaxRetries, job.NextRetryAt, job.TimeoutCount, errsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.CalculationJob, error) {
	query := `
		SELECT id, league_id, season_id, priority, status, trigger, description, created_at,
		       started_at, completed_at, retry_count, max_retries, next_retry_at,
		       timeout_count, errors
		FROM calculation_jobs WHERE id = $1
	`
	var row jobRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	return row.toDomain()
}

func (r *JobRepo) History(ctx context.Context, leagueID string, limit int) ([]*domain.CalculationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, league_id, season_id, priority, status, trigger, description, created_at,
		       started_at, completed_at, retry_count, max_retries, next_retry_at,
		       timeout_count, errors
		FROM calculation_jobs
		WHERE league_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var rows []jobRow
	if err := sqlx.SelectContext(ctx, r.db.DB, &rows, query, leagueID, limit); err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}

	jobs := make([]*domain.CalculationJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *JobRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM calculation_jobs WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete jobs: %w", err)
	}
	return nil
}

func (row *jobRow) toDomain() (*domain.CalculationJob, error) {
	job := row.CalculationJob
	if len(row.ErrorsJSON) > 0 {
		if err := json.Unmarshal(row.ErrorsJSON, &job.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode job errors: %w", err)
		}
	}
	return &job, nil
}
