package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tabellenwerk/standings/internal/core/domain"
)

func seedTerminalJobs(m *Manager, status domain.JobStatus, n int, base time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", status, i)
		done := base.Add(time.Duration(i) * time.Minute)
		m.jobs[id] = &domain.CalculationJob{
			ID:          id,
			LeagueID:    "l1",
			SeasonID:    fmt.Sprintf("s%d", i),
			Status:      status,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			CompletedAt: &done,
		}
		ids = append(ids, id)
	}
	return ids
}

func TestTrimHistoryKeepsNewest(t *testing.T) {
	m := NewManager(Config{RetentionCompleted: 3, RetentionFailed: 2}, &stubCalc{}, nil, nil, nil, nil)
	base := time.Now().Add(-time.Hour)

	completed := seedTerminalJobs(m, domain.JobStatusCompleted, 5, base)
	failed := seedTerminalJobs(m, domain.JobStatusFailed, 4, base)

	m.trimHistory(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()
	var keptCompleted, keptFailed int
	for _, j := range m.jobs {
		switch j.Status {
		case domain.JobStatusCompleted:
			keptCompleted++
		case domain.JobStatusFailed:
			keptFailed++
		}
	}
	if keptCompleted != 3 {
		t.Errorf("kept %d completed jobs, want 3", keptCompleted)
	}
	if keptFailed != 2 {
		t.Errorf("kept %d failed jobs, want 2", keptFailed)
	}

	// The newest records survive, the oldest go.
	if _, ok := m.jobs[completed[4]]; !ok {
		t.Error("newest completed job was trimmed")
	}
	if _, ok := m.jobs[completed[0]]; ok {
		t.Error("oldest completed job survived the trim")
	}
	if _, ok := m.jobs[failed[0]]; ok {
		t.Error("oldest failed job survived the trim")
	}
}

func TestTrimHistorySparesDeadLetter(t *testing.T) {
	m := NewManager(Config{RetentionFailed: 1}, &stubCalc{}, nil, nil, nil, nil)
	base := time.Now().Add(-time.Hour)

	ids := seedTerminalJobs(m, domain.JobStatusFailed, 3, base)
	m.mu.Lock()
	m.deadLetter[ids[0]] = struct{}{}
	m.mu.Unlock()

	m.trimHistory(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[ids[0]]; !ok {
		t.Error("dead-lettered job must survive retention trimming")
	}
}

func TestGetJobHistoryInMemory(t *testing.T) {
	m := NewManager(Config{}, &stubCalc{}, nil, nil, nil, nil)
	base := time.Now().Add(-time.Hour)
	seedTerminalJobs(m, domain.JobStatusCompleted, 5, base)

	jobs, err := m.GetJobHistory(context.Background(), "l1", 3)
	if err != nil {
		t.Fatalf("GetJobHistory: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("history returned %d jobs, want limit 3", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].CreatedAt.After(jobs[i-1].CreatedAt) {
			t.Error("history not sorted newest first")
		}
	}
}
