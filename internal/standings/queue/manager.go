package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/storage"
	"github.com/tabellenwerk/standings/internal/standings/faults"
	"github.com/tabellenwerk/standings/internal/standings/metrics"
)

// Calculator runs one standings calculation. The engine implements it.
// Recalculate must bypass any cached table: a queued job exists because
// the current table is suspect.
type Calculator interface {
	Recalculate(ctx context.Context, leagueID, seasonID string) ([]*domain.StandingsEntry, error)
}

// Fallback is the policy consulted when processing cannot proceed.
type Fallback interface {
	OnCalculationFailure(ctx context.Context, leagueID, seasonID string, cause *faults.ClassifiedError) error
	Escalate(ctx context.Context, cause *faults.ClassifiedError)
	ReadOnly() bool
}

// Config tunes the queue manager.
type Config struct {
	Concurrency        int           `yaml:"concurrency"`
	JobTimeout         time.Duration `yaml:"job_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryInterval      time.Duration `yaml:"retry_interval"`
	MaxPending         int           `yaml:"max_pending"`
	OverloadCooldown   time.Duration `yaml:"overload_cooldown"`
	RetentionCompleted int           `yaml:"retention_completed"`
	RetentionFailed    int           `yaml:"retention_failed"`
	RetentionInterval  time.Duration `yaml:"retention_interval"`
}

// DefaultConfig matches the small-single-digit worker pool the pipeline
// is designed around.
var DefaultConfig = Config{
	Concurrency:        3,
	JobTimeout:         2 * time.Minute,
	MaxRetries:         3,
	RetryInterval:      5 * time.Second,
	MaxPending:         100,
	OverloadCooldown:   30 * time.Second,
	RetentionCompleted: 200,
	RetentionFailed:    100,
	RetentionInterval:  5 * time.Minute,
}

func (c Config) withDefaults() Config {
	d := DefaultConfig
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.MaxPending <= 0 {
		c.MaxPending = d.MaxPending
	}
	if c.OverloadCooldown <= 0 {
		c.OverloadCooldown = d.OverloadCooldown
	}
	if c.RetentionCompleted <= 0 {
		c.RetentionCompleted = d.RetentionCompleted
	}
	if c.RetentionFailed <= 0 {
		c.RetentionFailed = d.RetentionFailed
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = d.RetentionInterval
	}
	return c
}

// Manager owns the calculation job lifecycle: admission with pair-lock
// deduplication, bounded concurrent execution, retry scheduling,
// dead-lettering and retention trimming. The job map and pair-lock map
// are the only shared mutable state and every access goes through mu.
type Manager struct {
	cfg      Config
	calc     Calculator
	breaker  *faults.CircuitBreaker
	fallback Fallback
	repo     storage.JobRepository
	log      *slog.Logger

	mu         sync.Mutex
	jobs       map[string]*domain.CalculationJob
	locks      map[string]string // target key -> owning job id
	deadLetter map[string]struct{}
	order      uint64 // admission tiebreak for equal timestamps
	seq        map[string]uint64
	pausedTill time.Time
	runCtx     context.Context

	sem      chan struct{}
	draining atomic.Bool
	wg       sync.WaitGroup

	totalCompleted uint64
	totalFailed    uint64
	totalDuration  time.Duration
}

// NewManager wires a queue manager. repo may be nil (in-memory only);
// fallback may be nil (no rollback or escalation policy).
func NewManager(
	cfg Config,
	calc Calculator,
	breaker *faults.CircuitBreaker,
	fb Fallback,
	repo storage.JobRepository,
	log *slog.Logger,
) *Manager {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	if breaker == nil {
		breaker = faults.NewCircuitBreaker(faults.DefaultBreakerConfig)
	}
	return &Manager{
		cfg:        cfg,
		calc:       calc,
		breaker:    breaker,
		fallback:   fb,
		repo:       repo,
		log:        log,
		jobs:       make(map[string]*domain.CalculationJob),
		locks:      make(map[string]string),
		deadLetter: make(map[string]struct{}),
		seq:        make(map[string]uint64),
		sem:        make(chan struct{}, cfg.Concurrency),
		runCtx:     context.Background(),
	}
}

// Enqueue admits a calculation job for a target. If an active job
// already holds the pair lock its id is returned unchanged. Processing
// is triggered asynchronously; the caller never blocks on it.
func (m *Manager) Enqueue(ctx context.Context, leagueID, seasonID string, priority domain.JobPriority, trigger, description string) (string, error) {
	if leagueID == "" || seasonID == "" {
		return "", faults.New(faults.TypeInvalidInput, faults.OpQueueAdmit,
			"league and season ids are required")
	}
	if m.fallback != nil && m.fallback.ReadOnly() {
		return "", faults.New(faults.TypeFeatureDisabled, faults.OpQueueAdmit,
			"pipeline is in read-only mode").WithTarget(leagueID, seasonID)
	}

	key := domain.TargetKey(leagueID, seasonID)
	now := time.Now()

	m.mu.Lock()
	if id, ok := m.locks[key]; ok {
		m.mu.Unlock()
		return id, nil
	}

	if now.Before(m.pausedTill) {
		m.mu.Unlock()
		return "", faults.New(faults.TypeQueueFull, faults.OpQueueAdmit,
			"admission paused after overload").WithTarget(leagueID, seasonID)
	}

	if m.pendingCountLocked() >= m.cfg.MaxPending {
		dropped := m.dropLowPriorityLocked()
		m.pausedTill = now.Add(m.cfg.OverloadCooldown)
		m.mu.Unlock()
		m.log.Warn("queue overloaded, admission paused",
			"dropped_low_priority", dropped, "cooldown", m.cfg.OverloadCooldown)
		return "", faults.New(faults.TypeQueueFull, faults.OpQueueAdmit,
			"too many pending jobs").WithTarget(leagueID, seasonID)
	}

	job := &domain.CalculationJob{
		ID:          uuid.NewString(),
		LeagueID:    leagueID,
		SeasonID:    seasonID,
		Priority:    priority,
		Status:      domain.JobStatusPending,
		Trigger:     trigger,
		Description: description,
		CreatedAt:   now,
		MaxRetries:  m.cfg.MaxRetries,
	}
	m.order++
	m.seq[job.ID] = m.order
	m.jobs[job.ID] = job
	m.locks[key] = job.ID
	m.updateGaugesLocked()
	runCtx := m.runCtx
	m.mu.Unlock()

	m.persist(job)
	m.log.Info("job queued",
		"job", job.ID, "league", leagueID, "season", seasonID,
		"priority", priority.String(), "trigger", trigger)

	go m.ProcessQueue(runCtx)
	return job.ID, nil
}

// ProcessQueue drains admissible pending jobs respecting the concurrency
// limit. Re-entrant-safe: a concurrent invocation while one is already
// draining is a no-op.
func (m *Manager) ProcessQueue(ctx context.Context) {
	if !m.draining.CompareAndSwap(false, true) {
		return
	}
	defer m.draining.Store(false)

	for {
		if ctx.Err() != nil {
			return
		}

		// Take the worker slot first so the claim always picks the best
		// admissible job at the moment a slot is actually free.
		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		job := m.claimNext()
		if job == nil {
			<-m.sem
			return
		}

		m.wg.Add(1)
		go func(j *domain.CalculationJob) {
			defer m.wg.Done()
			defer func() { <-m.sem }()
			m.execute(ctx, j)
		}(job)
	}
}

// claimNext picks the best admissible pending job (priority descending,
// then admission order) and marks it processing.
func (m *Manager) claimNext() *domain.CalculationJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var best *domain.CalculationJob
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusPending {
			continue
		}
		if j.NextRetryAt != nil && now.Before(*j.NextRetryAt) {
			continue
		}
		if best == nil || m.beatsLocked(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil
	}

	best.Status = domain.JobStatusProcessing
	started := time.Now()
	best.StartedAt = &started
	m.updateGaugesLocked()
	cp := *best
	return &cp
}

func (m *Manager) beatsLocked(a, b *domain.CalculationJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return m.seq[a.ID] < m.seq[b.ID]
}

// execute runs one job against the calculator, racing it with the job
// timeout. The per-job context is cancelled on timeout so data-access
// calls get the signal too.
func (m *Manager) execute(ctx context.Context, claimed *domain.CalculationJob) {
	if !m.breaker.Allow(faults.OpCalculate) {
		// Fail fast without spending a retry attempt; re-admit when the
		// breaker is due to probe again.
		next := m.breaker.NextAttempt(faults.OpCalculate)
		if next.IsZero() {
			next = time.Now().Add(time.Second)
		}
		m.log.Warn("circuit open, deferring job", "job", claimed.ID, "until", next)
		m.deferJob(claimed.ID, next)
		return
	}

	m.persistByID(claimed.ID)
	m.log.Info("job started", "job", claimed.ID, "league", claimed.LeagueID, "season", claimed.SeasonID)

	jctx, cancel := context.WithTimeout(ctx, m.cfg.JobTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := m.calc.Recalculate(jctx, claimed.LeagueID, claimed.SeasonID)
		done <- err
	}()

	var runErr error
	timedOut := false
	select {
	case runErr = <-done:
	case <-jctx.Done():
		timedOut = jctx.Err() == context.DeadlineExceeded
		runErr = faults.New(faults.TypeJobTimeout, faults.OpCalculate,
			"calculation exceeded job timeout").
			WithTarget(claimed.LeagueID, claimed.SeasonID).WithJob(claimed.ID)
		if !timedOut {
			runErr = jctx.Err()
		}
	}

	if runErr == nil {
		m.completeJob(claimed.ID)
		return
	}
	m.failJob(ctx, claimed.ID, runErr, timedOut)
}

func (m *Manager) deferJob(id string, until time.Time) {
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		j.Status = domain.JobStatusPending
		j.StartedAt = nil
		j.NextRetryAt = &until
		m.updateGaugesLocked()
	}
	m.mu.Unlock()
	m.persistByID(id)
}

func (m *Manager) completeJob(id string) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	j.Status = domain.JobStatusCompleted
	j.CompletedAt = &now
	j.NextRetryAt = nil
	delete(m.locks, j.TargetKey())

	var dur time.Duration
	if j.StartedAt != nil {
		dur = now.Sub(*j.StartedAt)
	}
	m.totalCompleted++
	m.totalDuration += dur
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.breaker.RecordSuccess(faults.OpCalculate)
	metrics.JobsProcessed.WithLabelValues("completed").Inc()
	metrics.JobDuration.Observe(dur.Seconds())
	m.persistByID(id)
	m.log.Info("job completed", "job", id, "duration", dur)
}

// failJob classifies the failure and enacts the handling decision:
// schedule a retry, roll back via the fallback strategy, dead-letter, or
// escalate.
func (m *Manager) failJob(ctx context.Context, id string, runErr error, timedOut bool) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	cerr := faults.Classify(runErr, faults.OpCalculate).
		WithTarget(j.LeagueID, j.SeasonID).WithJob(id)
	j.RecordError(string(cerr.Type), cerr.Message)
	if timedOut {
		j.TimeoutCount++
	}

	retry := cerr.Retryable && j.RetryCount < j.MaxRetries
	rollback := cerr.Type == faults.TypeCalculation || cerr.Type == faults.TypeDataInconsistency

	if retry {
		j.RetryCount++
		attempt, maxRetries := j.RetryCount, j.MaxRetries
		delay := faults.RetryDelay(cerr.Type, attempt)
		next := time.Now().Add(delay)
		j.NextRetryAt = &next
		j.Status = domain.JobStatusPending // pair lock retained
		j.StartedAt = nil
		m.updateGaugesLocked()
		m.mu.Unlock()

		m.breaker.RecordFailure(faults.OpCalculate)
		metrics.JobRetries.WithLabelValues(string(cerr.Type)).Inc()
		m.persistByID(id)
		m.log.Warn("job failed, retry scheduled",
			"job", id, "attempt", attempt, "max", maxRetries,
			"delay", delay, "error_type", cerr.Type, "error", cerr.Message)
	} else {
		now := time.Now()
		j.Status = domain.JobStatusFailed
		j.CompletedAt = &now
		j.NextRetryAt = nil
		retries := j.RetryCount
		delete(m.locks, j.TargetKey())
		m.deadLetter[id] = struct{}{}
		m.totalFailed++
		m.updateGaugesLocked()
		m.mu.Unlock()

		m.breaker.RecordFailure(faults.OpCalculate)
		metrics.JobsProcessed.WithLabelValues("failed").Inc()
		m.persistByID(id)
		m.log.Error("job dead-lettered",
			"job", id, "retries", retries, "error_type", cerr.Type, "error", cerr.Message)
	}

	if m.fallback == nil {
		return
	}
	if rollback {
		if err := m.fallback.OnCalculationFailure(ctx, cerr.LeagueID, cerr.SeasonID, cerr); err != nil {
			m.log.Error("fallback rollback failed", "job", id, "error", err)
		}
	}
	if cerr.Severity == faults.SeverityCritical {
		m.fallback.Escalate(ctx, cerr)
	}
}

func (m *Manager) pendingCountLocked() int {
	n := 0
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusPending {
			n++
		}
	}
	return n
}

// dropLowPriorityLocked cancels LOW-priority pending backlog during
// overload, releasing their pair locks.
func (m *Manager) dropLowPriorityLocked() int {
	dropped := 0
	now := time.Now()
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusPending || j.Priority != domain.PriorityLow {
			continue
		}
		j.Status = domain.JobStatusCancelled
		j.CompletedAt = &now
		delete(m.locks, j.TargetKey())
		dropped++
	}
	if dropped > 0 {
		m.updateGaugesLocked()
	}
	return dropped
}

func (m *Manager) updateGaugesLocked() {
	metrics.QueueDepth.Set(float64(m.pendingCountLocked()))
	metrics.DeadLetterSize.Set(float64(len(m.deadLetter)))
	for op, st := range m.breaker.States() {
		metrics.BreakerState.WithLabelValues(string(op)).Set(float64(st))
	}
}

func (m *Manager) persist(job *domain.CalculationJob) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Save(context.Background(), job); err != nil {
		m.log.Warn("failed to persist job record", "job", job.ID, "error", err)
	}
}

func (m *Manager) persistByID(id string) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	cp := *j
	cp.Errors = append([]domain.JobError(nil), j.Errors...)
	m.mu.Unlock()
	m.persist(&cp)
}
