package queue

import (
	"context"
	"sort"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"

	"github.com/tabellenwerk/standings/internal/core/domain"
)

// Start launches the background loops: retry re-admission and retention
// trimming. The manager runs until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()
	go m.retryLoop(ctx)
	go m.retentionLoop(ctx)
}

// Stop waits for in-flight workers to finish, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryLoop periodically re-admits pending jobs whose nextRetryAt has
// elapsed. Jittered so multiple pipelines don't wake in lockstep.
func (m *Manager) retryLoop(ctx context.Context) {
	ticker := jitterbug.New(m.cfg.RetryInterval, &jitterbug.Norm{Stdev: m.cfg.RetryInterval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.hasDueRetry() {
				m.ProcessQueue(ctx)
			}
		}
	}
}

func (m *Manager) hasDueRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusPending {
			continue
		}
		if j.NextRetryAt == nil || !now.Before(*j.NextRetryAt) {
			return true
		}
	}
	return false
}

// retentionLoop trims completed and failed history beyond the configured
// retention counts. Dead-lettered jobs are exempt until cleared.
func (m *Manager) retentionLoop(ctx context.Context) {
	ticker := jitterbug.New(m.cfg.RetentionInterval, &jitterbug.Norm{Stdev: m.cfg.RetentionInterval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.trimHistory(ctx)
		}
	}
}

func (m *Manager) trimHistory(ctx context.Context) {
	m.mu.Lock()
	var completed, failed []*domain.CalculationJob
	for id, j := range m.jobs {
		if _, dl := m.deadLetter[id]; dl {
			continue
		}
		switch j.Status {
		case domain.JobStatusCompleted:
			completed = append(completed, j)
		case domain.JobStatusFailed, domain.JobStatusCancelled:
			failed = append(failed, j)
		}
	}

	trim := func(jobs []*domain.CalculationJob, keep int) []string {
		if len(jobs) <= keep {
			return nil
		}
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
		var ids []string
		for _, j := range jobs[keep:] {
			ids = append(ids, j.ID)
			delete(m.jobs, j.ID)
			delete(m.seq, j.ID)
		}
		return ids
	}

	removed := trim(completed, m.cfg.RetentionCompleted)
	removed = append(removed, trim(failed, m.cfg.RetentionFailed)...)
	m.mu.Unlock()

	if len(removed) == 0 {
		return
	}
	if m.repo != nil {
		if err := m.repo.DeleteByIDs(ctx, removed); err != nil {
			m.log.Warn("failed to trim job records", "error", err)
		}
	}
	m.log.Debug("job history trimmed", "removed", len(removed))
}
