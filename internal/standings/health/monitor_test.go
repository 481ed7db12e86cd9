package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tabellenwerk/standings/internal/standings/faults"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Health(ctx context.Context) error { return p.err }

func TestCheckAllHealthy(t *testing.T) {
	m := NewMonitor(&stubPinger{}, &stubPinger{}, nil, nil, nil)
	r := m.Check(context.Background())
	if r.Status != StatusHealthy {
		t.Errorf("status = %v, want %v", r.Status, StatusHealthy)
	}
}

func TestCheckNilComponentsAreHealthy(t *testing.T) {
	m := NewMonitor(nil, nil, nil, nil, nil)
	if r := m.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("status = %v, want %v", r.Status, StatusHealthy)
	}
}

func TestCheckDatabaseDownIsCritical(t *testing.T) {
	m := NewMonitor(&stubPinger{err: errors.New("connection refused")}, &stubPinger{}, nil, nil, nil)
	r := m.Check(context.Background())
	if r.Status != StatusCritical || r.Database != StatusCritical {
		t.Errorf("report = %+v, want critical database", r)
	}
}

func TestCheckCacheDownOnlyDegrades(t *testing.T) {
	m := NewMonitor(&stubPinger{}, &stubPinger{err: errors.New("redis: connection refused")}, nil, nil, nil)
	r := m.Check(context.Background())
	if r.Status != StatusDegraded || r.Cache != StatusDegraded {
		t.Errorf("report = %+v, want degraded cache", r)
	}
	if r.Database != StatusHealthy {
		t.Errorf("database = %v, want healthy", r.Database)
	}
}

func TestCheckOpenBreakerDegrades(t *testing.T) {
	breaker := faults.NewCircuitBreaker(faults.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	breaker.RecordFailure(faults.OpCalculate)

	m := NewMonitor(&stubPinger{}, &stubPinger{}, nil, breaker, nil)
	r := m.Check(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("status = %v, want %v", r.Status, StatusDegraded)
	}
	if r.Breakers["calculate"] != "open" {
		t.Errorf("breakers = %v, want calculate open", r.Breakers)
	}
}

func TestCheckDatabaseOutranksCache(t *testing.T) {
	m := NewMonitor(
		&stubPinger{err: errors.New("down")},
		&stubPinger{err: errors.New("down")},
		nil, nil, nil,
	)
	if r := m.Check(context.Background()); r.Status != StatusCritical {
		t.Errorf("status = %v, want critical to win over degraded", r.Status)
	}
}
