package fallback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/blob"
	"github.com/tabellenwerk/standings/internal/infra/storage"
	"github.com/tabellenwerk/standings/internal/infra/storage/memory"
	"github.com/tabellenwerk/standings/internal/standings/faults"
	"github.com/tabellenwerk/standings/internal/standings/snapshot"
)

type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *mockNotifier) Notify(ctx context.Context, event string, fields map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func newTestStrategy(t *testing.T) (*Strategy, *snapshot.Service, *memory.MemoryStorage, *mockNotifier) {
	t.Helper()
	store, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	mem := memory.NewMemoryStorage()
	snaps := snapshot.NewService(memory.NewStandingsRepo(mem), memory.NewTxManager(mem), store, snapshot.Config{}, nil)
	notifier := &mockNotifier{}
	return NewStrategy(snaps, notifier, nil), snaps, mem, notifier
}

func TestOnCalculationFailureRollsBack(t *testing.T) {
	strategy, snaps, mem, _ := newTestStrategy(t)
	ctx := context.Background()

	good := &domain.StandingsEntry{
		LeagueID: "l1", SeasonID: "s1", EntityID: "A",
		Kind: domain.EntityKindTeam, Name: "A", Rank: 1, Points: 6, LastUpdated: time.Now(),
	}
	if err := memory.NewStandingsRepo(mem).BulkUpsert(ctx, []*domain.StandingsEntry{good}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := snaps.Create(ctx, "l1", "s1", "known good"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Corrupt the live table, then fail the calculation.
	bad := *good
	bad.Points = -5
	_ = memory.NewStandingsRepo(mem).BulkUpsert(ctx, []*domain.StandingsEntry{&bad})

	cause := faults.New(faults.TypeDataInconsistency, faults.OpCalculate, "totals do not add up")
	if err := strategy.OnCalculationFailure(ctx, "l1", "s1", cause); err != nil {
		t.Fatalf("OnCalculationFailure: %v", err)
	}

	table, _ := memory.NewStandingsRepo(mem).Find(ctx, storage.StandingsFilter{LeagueID: "l1", SeasonID: "s1"})
	if len(table) != 1 || table[0].Points != 6 {
		t.Errorf("table after rollback = %+v, want the snapshotted row", table)
	}
}

func TestOnCalculationFailureWithoutSnapshot(t *testing.T) {
	strategy, _, _, _ := newTestStrategy(t)

	cause := faults.New(faults.TypeCalculation, faults.OpCalculate, "boom")
	// No snapshot exists: degrade to a warning, not an error.
	if err := strategy.OnCalculationFailure(context.Background(), "l1", "s1", cause); err != nil {
		t.Fatalf("OnCalculationFailure: %v", err)
	}
}

func TestEscalateNotifies(t *testing.T) {
	strategy, _, _, notifier := newTestStrategy(t)

	cause := faults.New(faults.TypeDataInconsistency, faults.OpCalculate, "boom").WithTarget("l1", "s1")
	strategy.Escalate(context.Background(), cause)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0] != "pipeline.escalation" {
		t.Errorf("events = %v, want one escalation", notifier.events)
	}
}

func TestReadOnlyToggle(t *testing.T) {
	strategy, _, _, _ := newTestStrategy(t)

	if strategy.ReadOnly() {
		t.Fatal("fresh strategy should not be read-only")
	}
	strategy.EnterReadOnly("db unreachable")
	if !strategy.ReadOnly() {
		t.Fatal("EnterReadOnly did not take effect")
	}
	strategy.ExitReadOnly()
	if strategy.ReadOnly() {
		t.Fatal("ExitReadOnly did not take effect")
	}
}
