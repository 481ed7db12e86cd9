package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/blob"
	"github.com/tabellenwerk/standings/internal/infra/storage"
	"github.com/tabellenwerk/standings/internal/infra/storage/memory"
)

func newTestService(t *testing.T, cfg Config) (*Service, *memory.MemoryStorage, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := blob.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	mem := memory.NewMemoryStorage()
	svc := NewService(memory.NewStandingsRepo(mem), memory.NewTxManager(mem), store, cfg, nil)
	return svc, mem, dir
}

func seedStandings(t *testing.T, mem *memory.MemoryStorage, entries ...*domain.StandingsEntry) {
	t.Helper()
	if err := memory.NewStandingsRepo(mem).BulkUpsert(context.Background(), entries); err != nil {
		t.Fatalf("seed standings: %v", err)
	}
}

func entry(league, season, entity string, rank, points int) *domain.StandingsEntry {
	return &domain.StandingsEntry{
		LeagueID: league, SeasonID: season, EntityID: entity,
		Kind: domain.EntityKindTeam, Name: entity,
		Rank: rank, Points: points, AutoComputed: true, LastUpdated: time.Now(),
	}
}

func currentTable(t *testing.T, mem *memory.MemoryStorage, league, season string) []*domain.StandingsEntry {
	t.Helper()
	out, err := memory.NewStandingsRepo(mem).Find(context.Background(), storage.StandingsFilter{
		LeagueID: league, SeasonID: season,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	return out
}

func TestCreateAndRestoreRoundtrip(t *testing.T) {
	svc, mem, _ := newTestService(t, Config{})
	ctx := context.Background()
	seedStandings(t, mem,
		entry("l1", "s1", "A", 1, 6),
		entry("l1", "s1", "B", 2, 1),
	)

	snap, err := svc.Create(ctx, "l1", "s1", "before correction")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if snap.Checksum == "" || snap.Size == 0 {
		t.Errorf("snapshot metadata incomplete: %+v", snap)
	}

	// Overwrite the live table, then restore.
	seedStandings(t, mem, entry("l1", "s1", "A", 1, 99))

	result, err := svc.Restore(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !result.Success || result.RestoredCount != 2 {
		t.Fatalf("result = %+v, want success with 2 rows", result)
	}

	table := currentTable(t, mem, "l1", "s1")
	if len(table) != 2 {
		t.Fatalf("table has %d rows after restore, want 2", len(table))
	}
	for _, e := range table {
		if e.EntityID == "A" && e.Points != 6 {
			t.Errorf("A points = %d after restore, want 6", e.Points)
		}
	}
}

func TestRestoreCreatesPreRestoreBackup(t *testing.T) {
	svc, mem, _ := newTestService(t, Config{})
	ctx := context.Background()
	seedStandings(t, mem, entry("l1", "s1", "A", 1, 6))

	snap, err := svc.Create(ctx, "l1", "s1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Restore(ctx, snap.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	snaps, err := svc.List(ctx, "l1", "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("have %d snapshots after restore, want 2 (original + backup)", len(snaps))
	}

	var backup *domain.Snapshot
	for _, s := range snaps {
		if s.PreRestore {
			backup = s
		}
	}
	if backup == nil {
		t.Fatal("no pre-restore backup created")
	}

	// Restoring the backup itself must not spawn another backup.
	if _, err := svc.Restore(ctx, backup.ID); err != nil {
		t.Fatalf("Restore(backup): %v", err)
	}
	snaps, _ = svc.List(ctx, "l1", "s1")
	if len(snaps) != 2 {
		t.Errorf("restoring a backup created another backup: %d snapshots", len(snaps))
	}
}

func TestRestoreCorruptedChecksum(t *testing.T) {
	svc, mem, dir := newTestService(t, Config{})
	ctx := context.Background()
	seedStandings(t, mem, entry("l1", "s1", "A", 1, 6))

	snap, err := svc.Create(ctx, "l1", "s1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Tamper with the stored entries without fixing the checksum.
	path := filepath.Join(dir, filepath.FromSlash(snap.Location))
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	tampered := []*domain.StandingsEntry{entry("l1", "s1", "A", 1, 100)}
	p.Entries, _ = json.Marshal(tampered)
	raw, _ = json.Marshal(p)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write tampered blob: %v", err)
	}

	seedStandings(t, mem, entry("l1", "s1", "A", 1, 6))
	before := currentTable(t, mem, "l1", "s1")

	_, err = svc.Restore(ctx, snap.ID)
	if !errors.Is(err, ErrSnapshotCorrupted) {
		t.Fatalf("err = %v, want ErrSnapshotCorrupted", err)
	}

	// Corruption must leave the live table untouched.
	after := currentTable(t, mem, "l1", "s1")
	if len(after) != len(before) {
		t.Error("live table mutated by failed restore")
	}
}

func TestRestoreRejectsInvalidRowsPartially(t *testing.T) {
	svc, mem, dir := newTestService(t, Config{})
	ctx := context.Background()
	seedStandings(t, mem, entry("l1", "s1", "A", 1, 6))

	snap, err := svc.Create(ctx, "l1", "s1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Rewrite the blob with one good and one cross-target row, checksum
	// recomputed so only row validation trips.
	path := filepath.Join(dir, filepath.FromSlash(snap.Location))
	raw, _ := os.ReadFile(path)
	var p payload
	_ = json.Unmarshal(raw, &p)
	rows := []*domain.StandingsEntry{
		entry("l1", "s1", "A", 1, 6),
		entry("other", "s1", "B", 2, 1),
	}
	p.Entries, _ = json.Marshal(rows)
	p.Checksum = checksumHex(p.Entries)
	p.Snapshot.Checksum = p.Checksum
	raw, _ = json.Marshal(p)
	_ = os.WriteFile(path, raw, 0o644)

	result, err := svc.Restore(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Success {
		t.Error("restore with rejected rows must not report success")
	}
	if result.RestoredCount != 1 || len(result.Errors) != 1 {
		t.Errorf("result = %+v, want 1 restored and 1 rejected", result)
	}
}

func TestRestoreNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	_, err := svc.Restore(context.Background(), "l1:s1:0-missing")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestListNewestFirstAndScoped(t *testing.T) {
	svc, mem, _ := newTestService(t, Config{})
	ctx := context.Background()
	seedStandings(t, mem, entry("l1", "s1", "A", 1, 6))
	seedStandings(t, mem, entry("l2", "s1", "B", 1, 3))

	first, _ := svc.Create(ctx, "l1", "s1", "first")
	time.Sleep(5 * time.Millisecond)
	second, _ := svc.Create(ctx, "l1", "s1", "second")
	_, _ = svc.Create(ctx, "l2", "s1", "other target")

	snaps, err := svc.List(ctx, "l1", "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("listed %d snapshots, want 2 (scoped to target)", len(snaps))
	}
	if snaps[0].ID != second.ID || snaps[1].ID != first.ID {
		t.Errorf("order = [%s %s], want newest first", snaps[0].ID, snaps[1].ID)
	}

	latest, err := svc.Latest(ctx, "l1", "s1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Latest = %s, want %s", latest.ID, second.ID)
	}
}

func TestRetentionCap(t *testing.T) {
	svc, mem, _ := newTestService(t, Config{RetentionPerTarget: 3})
	ctx := context.Background()
	seedStandings(t, mem, entry("l1", "s1", "A", 1, 6))

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, "l1", "s1", ""); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	snaps, err := svc.List(ctx, "l1", "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 3 {
		t.Errorf("retained %d snapshots, want cap of 3", len(snaps))
	}
}

func TestDeleteSnapshot(t *testing.T) {
	svc, mem, _ := newTestService(t, Config{})
	ctx := context.Background()
	seedStandings(t, mem, entry("l1", "s1", "A", 1, 6))

	snap, _ := svc.Create(ctx, "l1", "s1", "")
	if err := svc.Delete(ctx, snap.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, snap.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("second delete err = %v, want ErrSnapshotNotFound", err)
	}
}
