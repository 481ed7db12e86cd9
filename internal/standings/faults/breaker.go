package faults

import (
	"sync"
	"time"
)

// Op is an interned circuit-breaker key. Keeping this a fixed enumeration
// bounds the breaker map regardless of input.
type Op string

const (
	OpCalculate       Op = "calculate"
	OpTeamStats       Op = "team_stats"
	OpSnapshotCreate  Op = "snapshot_create"
	OpSnapshotRestore Op = "snapshot_restore"
	OpCacheWarm       Op = "cache_warm"
	OpQueueAdmit      Op = "queue_admit"
)

// BreakerState is the classic three-state circuit.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type breakerEntry struct {
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
}

// BreakerConfig tunes all breakers tracked by one CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures and probes
// again after thirty seconds.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	RecoveryTimeout:  30 * time.Second,
}

// CircuitBreaker tracks per-operation failure state. CLOSED admits work;
// OPEN rejects it until the recovery timeout elapses; the first call after
// that runs as a HALF_OPEN probe whose outcome decides the next state.
type CircuitBreaker struct {
	mu    sync.Mutex
	cfg   BreakerConfig
	ops   map[Op]*breakerEntry
	clock func() time.Time
}

// NewCircuitBreaker creates a breaker registry with the given config.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig.RecoveryTimeout
	}
	return &CircuitBreaker{
		cfg:   cfg,
		ops:   make(map[Op]*breakerEntry),
		clock: time.Now,
	}
}

func (cb *CircuitBreaker) entry(op Op) *breakerEntry {
	e, ok := cb.ops[op]
	if !ok {
		e = &breakerEntry{state: StateClosed}
		cb.ops[op] = e
	}
	return e
}

// Allow reports whether a call for op may proceed. Moving OPEN→HALF_OPEN
// happens here once the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow(op Op) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.entry(op)
	switch e.state {
	case StateOpen:
		if cb.clock().After(e.nextAttemptTime) {
			e.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess(op Op) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.entry(op)
	e.state = StateClosed
	e.failureCount = 0
}

// RecordFailure counts a failure and opens the circuit at the threshold.
// A failed HALF_OPEN probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure(op Op) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock()
	e := cb.entry(op)
	e.failureCount++
	e.lastFailureTime = now

	if e.state == StateHalfOpen || e.failureCount >= cb.cfg.FailureThreshold {
		e.state = StateOpen
		e.nextAttemptTime = now.Add(cb.cfg.RecoveryTimeout)
	}
}

// State returns the current state for op.
func (cb *CircuitBreaker) State(op Op) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.entry(op).state
}

// NextAttempt returns when an OPEN circuit will admit a probe. Zero time
// when the circuit is not open.
func (cb *CircuitBreaker) NextAttempt(op Op) time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.entry(op)
	if e.state != StateOpen {
		return time.Time{}
	}
	return e.nextAttemptTime
}

// States snapshots all tracked circuits, for health reporting.
func (cb *CircuitBreaker) States() map[Op]BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	out := make(map[Op]BreakerState, len(cb.ops))
	for op, e := range cb.ops {
		out[op] = e.state
	}
	return out
}
