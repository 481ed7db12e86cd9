package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/tabellenwerk/standings/internal/standings/faults"
	"github.com/tabellenwerk/standings/internal/standings/queue"
)

// HealthStatus is the aggregate verdict for one component.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusCritical HealthStatus = "critical"
)

// Pinger is any backing service that can report liveness.
type Pinger interface {
	Health(ctx context.Context) error
}

// Report is the detailed health payload.
type Report struct {
	Status    HealthStatus      `json:"status"`
	Database  HealthStatus      `json:"database"`
	Cache     HealthStatus      `json:"cache"`
	Queue     queue.Status      `json:"queue"`
	Breakers  map[string]string `json:"breakers"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Monitor aggregates component health. A missing optional component
// (nil pinger) reports healthy; the cache degrading is never critical.
type Monitor struct {
	db      Pinger
	cacheDB Pinger
	manager *queue.Manager
	breaker *faults.CircuitBreaker
	log     *slog.Logger
}

func NewMonitor(db, cacheDB Pinger, manager *queue.Manager, breaker *faults.CircuitBreaker, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{db: db, cacheDB: cacheDB, manager: manager, breaker: breaker, log: log}
}

// Check runs all component probes. Worst state wins overall, except the
// cache, which only ever degrades.
func (m *Monitor) Check(ctx context.Context) Report {
	r := Report{
		Status:    StatusHealthy,
		Database:  StatusHealthy,
		Cache:     StatusHealthy,
		Breakers:  make(map[string]string),
		CheckedAt: time.Now(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if m.db != nil {
		if err := m.db.Health(pingCtx); err != nil {
			r.Database = StatusCritical
			r.Status = StatusCritical
			m.log.Warn("database health check failed", "error", err)
		}
	}
	if m.cacheDB != nil {
		if err := m.cacheDB.Health(pingCtx); err != nil {
			r.Cache = StatusDegraded
			if r.Status == StatusHealthy {
				r.Status = StatusDegraded
			}
		}
	}

	if m.manager != nil {
		r.Queue = m.manager.GetQueueStatus()
		if r.Queue.Paused || r.Queue.DeadLetter > 0 {
			if r.Status == StatusHealthy {
				r.Status = StatusDegraded
			}
		}
	}

	if m.breaker != nil {
		for op, st := range m.breaker.States() {
			r.Breakers[string(op)] = st.String()
			if st == faults.StateOpen && r.Status == StatusHealthy {
				r.Status = StatusDegraded
			}
		}
	}
	return r
}
