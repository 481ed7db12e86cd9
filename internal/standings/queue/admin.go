package queue

import (
	"context"
	"sort"
	"time"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/standings/faults"
)

// Status is a point-in-time view of the queue for operators.
type Status struct {
	Pending        int           `json:"pending"`
	Processing     int           `json:"processing"`
	Completed      int           `json:"completed"`
	Failed         int           `json:"failed"`
	Cancelled      int           `json:"cancelled"`
	DeadLetter     int           `json:"dead_letter"`
	Paused         bool          `json:"paused"`
	SuccessRate    float64       `json:"success_rate"`
	AvgDuration    time.Duration `json:"avg_duration"`
	TotalCompleted uint64        `json:"total_completed"`
	TotalFailed    uint64        `json:"total_failed"`
}

// GetQueueStatus reports queue depth, rolling success rate and average
// job duration.
func (m *Manager) GetQueueStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		DeadLetter:     len(m.deadLetter),
		Paused:         time.Now().Before(m.pausedTill),
		TotalCompleted: m.totalCompleted,
		TotalFailed:    m.totalFailed,
	}
	for _, j := range m.jobs {
		switch j.Status {
		case domain.JobStatusPending:
			st.Pending++
		case domain.JobStatusProcessing:
			st.Processing++
		case domain.JobStatusCompleted:
			st.Completed++
		case domain.JobStatusFailed:
			st.Failed++
		case domain.JobStatusCancelled:
			st.Cancelled++
		}
	}

	finished := m.totalCompleted + m.totalFailed
	if finished > 0 {
		st.SuccessRate = float64(m.totalCompleted) / float64(finished)
	}
	if m.totalCompleted > 0 {
		st.AvgDuration = m.totalDuration / time.Duration(m.totalCompleted)
	}
	return st
}

// JobByID returns a copy of a job, in-memory state first, then the
// persisted record.
func (m *Manager) JobByID(ctx context.Context, id string) (*domain.CalculationJob, error) {
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		cp.Errors = append([]domain.JobError(nil), j.Errors...)
		m.mu.Unlock()
		return &cp, nil
	}
	m.mu.Unlock()

	if m.repo != nil {
		return m.repo.GetByID(ctx, id)
	}
	return nil, faults.New(faults.TypeMissingData, faults.OpQueueAdmit, "job not found: "+id)
}

// RetryFailedJob re-admits a FAILED job that still has retries left.
// Fails with a not-retryable condition otherwise.
func (m *Manager) RetryFailedJob(id string) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return faults.New(faults.TypeMissingData, faults.OpQueueAdmit, "job not found: "+id)
	}
	if j.Status != domain.JobStatusFailed {
		m.mu.Unlock()
		return faults.New(faults.TypeInvalidInput, faults.OpQueueAdmit,
			"job is not retryable: status is "+string(j.Status))
	}
	if j.RetryCount >= j.MaxRetries {
		m.mu.Unlock()
		return faults.New(faults.TypeInvalidInput, faults.OpQueueAdmit,
			"job is not retryable: retries exhausted")
	}
	key := j.TargetKey()
	if owner, held := m.locks[key]; held && owner != id {
		m.mu.Unlock()
		return faults.New(faults.TypeConcurrency, faults.OpQueueAdmit,
			"another job is active for this target")
	}

	j.Status = domain.JobStatusPending
	j.CompletedAt = nil
	j.NextRetryAt = nil
	m.locks[key] = id
	delete(m.deadLetter, id)
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.persistByID(id)
	go m.ProcessQueue(m.runCtx)
	return nil
}

// GetDeadLetterJobs returns the jobs awaiting manual intervention,
// oldest failure first.
func (m *Manager) GetDeadLetterJobs() []*domain.CalculationJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.CalculationJob, 0, len(m.deadLetter))
	for id := range m.deadLetter {
		if j, ok := m.jobs[id]; ok {
			cp := *j
			cp.Errors = append([]domain.JobError(nil), j.Errors...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CompletedAt, out[j].CompletedAt
		if ti == nil || tj == nil {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return ti.Before(*tj)
	})
	return out
}

// ReprocessDeadLetterJob resets a dead-lettered job and re-admits it
// with a fresh retry budget.
func (m *Manager) ReprocessDeadLetterJob(id string) error {
	m.mu.Lock()
	if _, ok := m.deadLetter[id]; !ok {
		m.mu.Unlock()
		return faults.New(faults.TypeMissingData, faults.OpQueueAdmit,
			"job not in dead-letter set: "+id)
	}
	j := m.jobs[id]
	key := j.TargetKey()
	if owner, held := m.locks[key]; held && owner != id {
		m.mu.Unlock()
		return faults.New(faults.TypeConcurrency, faults.OpQueueAdmit,
			"another job is active for this target")
	}

	j.Status = domain.JobStatusPending
	j.RetryCount = 0
	j.CompletedAt = nil
	j.NextRetryAt = nil
	m.locks[key] = id
	delete(m.deadLetter, id)
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.persistByID(id)
	m.log.Info("dead-letter job re-admitted", "job", id)
	go m.ProcessQueue(m.runCtx)
	return nil
}

// ClearDeadLetterQueue drops all dead-lettered jobs. Returns how many
// were removed.
func (m *Manager) ClearDeadLetterQueue(ctx context.Context) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.deadLetter))
	for id := range m.deadLetter {
		ids = append(ids, id)
		delete(m.jobs, id)
	}
	m.deadLetter = make(map[string]struct{})
	m.updateGaugesLocked()
	m.mu.Unlock()

	if m.repo != nil && len(ids) > 0 {
		if err := m.repo.DeleteByIDs(ctx, ids); err != nil {
			m.log.Warn("failed to delete dead-letter records", "error", err)
		}
	}
	m.log.Info("dead-letter queue cleared", "count", len(ids))
	return len(ids)
}

// GetJobHistory returns recent jobs for a league, newest first. Reads
// the persisted trail when a repository is configured.
func (m *Manager) GetJobHistory(ctx context.Context, leagueID string, limit int) ([]*domain.CalculationJob, error) {
	if m.repo != nil {
		return m.repo.History(ctx, leagueID, limit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CalculationJob
	for _, j := range m.jobs {
		if j.LeagueID != leagueID {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
