package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/storage"
)

// MemoryStorage is the in-process store used for dev mode and tests.
// All repositories share one lock; the dataset is small.
type MemoryStorage struct {
	mu        sync.RWMutex
	matches   map[string]*domain.Match
	standings map[string]*domain.StandingsEntry // key league:season:entity
	jobs      map[string]*domain.CalculationJob
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		matches:   make(map[string]*domain.Match),
		standings: make(map[string]*domain.StandingsEntry),
		jobs:      make(map[string]*domain.CalculationJob),
	}
}

func standingsKey(leagueID, seasonID, entityID string) string {
	return leagueID + ":" + seasonID + ":" + entityID
}

// MatchRepo

type MatchRepo struct{ s *MemoryStorage }

func NewMatchRepo(s *MemoryStorage) *MatchRepo { return &MatchRepo{s: s} }

func (r *MatchRepo) Find(ctx context.Context, f storage.MatchFilter) ([]*domain.Match, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Match
	for _, m := range r.s.matches {
		if m.LeagueID != f.LeagueID || m.SeasonID != f.SeasonID {
			continue
		}
		if f.CountableOnly && !m.Countable() {
			continue
		}
		if f.EntityID != "" && m.HomeID != f.EntityID && m.AwayID != f.EntityID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlayedAt.Equal(out[j].PlayedAt) {
			return out[i].PlayedAt.Before(out[j].PlayedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MatchRepo) Save(ctx context.Context, m *domain.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *m
	r.s.matches[m.ID] = &cp
	return nil
}

// StandingsRepo

type StandingsRepo struct{ s *MemoryStorage }

func NewStandingsRepo(s *MemoryStorage) *StandingsRepo { return &StandingsRepo{s: s} }

func (r *StandingsRepo) Find(ctx context.Context, f storage.StandingsFilter) ([]*domain.StandingsEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.StandingsEntry
	for _, e := range r.s.standings {
		if e.LeagueID != f.LeagueID || e.SeasonID != f.SeasonID {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (r *StandingsRepo) BulkUpsert(ctx context.Context, entries []*domain.StandingsEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range entries {
		cp := *e
		r.s.standings[standingsKey(e.LeagueID, e.SeasonID, e.EntityID)] = &cp
	}
	return nil
}

func (r *StandingsRepo) Delete(ctx context.Context, f storage.StandingsFilter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, e := range r.s.standings {
		if e.LeagueID != f.LeagueID || e.SeasonID != f.SeasonID {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		delete(r.s.standings, k)
	}
	return nil
}

// JobRepo

type JobRepo struct{ s *MemoryStorage }

func NewJobRepo(s *MemoryStorage) *JobRepo { return &JobRepo{s: s} }

func (r *JobRepo) Save(ctx context.Context, job *domain.CalculationJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *job
	cp.Errors = append([]domain.JobError(nil), job.Errors...)
	r.s.jobs[job.ID] = &cp
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.CalculationJob, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *JobRepo) History(ctx context.Context, leagueID string, limit int) ([]*domain.CalculationJob, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.CalculationJob
	for _, job := range r.s.jobs {
		if job.LeagueID != leagueID {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		delete(r.s.jobs, id)
	}
	return nil
}

// TxManager imitates the transactional boundary for the in-memory store.
// Operations apply immediately; a returned error cannot undo them, which
// is acceptable for dev/test use only.
type TxManager struct{ s *MemoryStorage }

func NewTxManager(s *MemoryStorage) *TxManager { return &TxManager{s: s} }

func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos storage.TxRepos) error) error {
	return fn(ctx, storage.TxRepos{
		Standings: NewStandingsRepo(m.s),
	})
}
