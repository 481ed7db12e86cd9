package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tabellenwerk/standings/internal/core/domain"
)

type fakeBackend struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (b *fakeBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if b.err != nil {
		return "", false, b.err
	}
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *fakeBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if b.err != nil {
		return b.err
	}
	b.data[key] = value
	b.ttls[key] = ttl
	return nil
}

func (b *fakeBackend) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(b.data, k)
	}
	return nil
}

func (b *fakeBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	if b.err != nil {
		return nil, b.err
	}
	// Prefix*suffix matching covers every pattern the cache emits.
	var out []string
	star := strings.IndexByte(pattern, '*')
	for k := range b.data {
		switch {
		case star < 0:
			if k == pattern {
				out = append(out, k)
			}
		default:
			prefix, rest := pattern[:star], pattern[star+1:]
			rest = strings.TrimSuffix(rest, "*")
			if strings.HasPrefix(k, prefix) && strings.Contains(k[star:], rest) {
				out = append(out, k)
			}
		}
	}
	return out, nil
}

func entries() []*domain.StandingsEntry {
	return []*domain.StandingsEntry{
		{LeagueID: "l1", SeasonID: "s1", EntityID: "A", Rank: 1, Points: 6},
		{LeagueID: "l1", SeasonID: "s1", EntityID: "B", Rank: 2, Points: 1},
	}
}

func TestTableRoundtrip(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, Config{}, nil)
	ctx := context.Background()

	if _, ok := c.GetTable(ctx, "l1", "s1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.SetTable(ctx, "l1", "s1", entries())
	got, ok := c.GetTable(ctx, "l1", "s1")
	if !ok {
		t.Fatal("expected hit after SetTable")
	}
	if len(got) != 2 || got[0].EntityID != "A" || got[0].Points != 6 {
		t.Errorf("cached table corrupted: %+v", got)
	}
	if ttl := backend.ttls[TableKey("l1", "s1")]; ttl != DefaultConfig.TableTTL {
		t.Errorf("table TTL = %v, want %v", ttl, DefaultConfig.TableTTL)
	}
}

func TestTeamStatsRoundtrip(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, Config{}, nil)
	ctx := context.Background()

	entry := entries()[0]
	c.SetTeamStats(ctx, "l1", "s1", entry)

	got, ok := c.GetTeamStats(ctx, "l1", "s1", "A")
	if !ok {
		t.Fatal("expected hit after SetTeamStats")
	}
	if got.EntityID != "A" || got.Points != 6 {
		t.Errorf("cached stats corrupted: %+v", got)
	}
	if ttl := backend.ttls[TeamStatsKey("l1", "s1", "A")]; ttl != DefaultConfig.TeamStatsTTL {
		t.Errorf("team stats TTL = %v, want %v", ttl, DefaultConfig.TeamStatsTTL)
	}
}

func TestNilBackendDegrades(t *testing.T) {
	c := New(nil, Config{}, nil)
	ctx := context.Background()

	c.SetTable(ctx, "l1", "s1", entries())
	if _, ok := c.GetTable(ctx, "l1", "s1"); ok {
		t.Error("nil backend must always miss")
	}
	c.InvalidateTarget(ctx, "l1", "s1") // must not panic
}

func TestBackendErrorDegradesToMiss(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, Config{}, nil)
	ctx := context.Background()

	c.SetTable(ctx, "l1", "s1", entries())
	backend.err = context.DeadlineExceeded

	if _, ok := c.GetTable(ctx, "l1", "s1"); ok {
		t.Error("backend error must degrade to a miss")
	}
}

func TestCorruptEntryDropped(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, Config{}, nil)
	ctx := context.Background()

	key := TableKey("l1", "s1")
	backend.data[key] = "{not json"

	if _, ok := c.GetTable(ctx, "l1", "s1"); ok {
		t.Fatal("corrupt entry served as hit")
	}
	if _, still := backend.data[key]; still {
		t.Error("corrupt entry should be deleted on read")
	}
}

func TestInvalidateTarget(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, Config{}, nil)
	ctx := context.Background()

	c.SetTable(ctx, "l1", "s1", entries())
	c.SetTeamStats(ctx, "l1", "s1", entries()[0])
	c.SetTable(ctx, "l2", "s1", entries())

	c.InvalidateTarget(ctx, "l1", "s1")

	if _, ok := c.GetTable(ctx, "l1", "s1"); ok {
		t.Error("table for invalidated target still cached")
	}
	if _, ok := c.GetTeamStats(ctx, "l1", "s1", "A"); ok {
		t.Error("team stats for invalidated target still cached")
	}
	if _, ok := c.GetTable(ctx, "l2", "s1"); !ok {
		t.Error("other target's table must survive invalidation")
	}
}

func TestInvalidateTeamStatsKeepsTable(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, Config{}, nil)
	ctx := context.Background()

	c.SetTable(ctx, "l1", "s1", entries())
	c.SetTeamStats(ctx, "l1", "s1", entries()[0])

	c.InvalidateTeamStats(ctx, "l1", "s1")

	if _, ok := c.GetTeamStats(ctx, "l1", "s1", "A"); ok {
		t.Error("team stats survived their invalidation")
	}
	if _, ok := c.GetTable(ctx, "l1", "s1"); !ok {
		t.Error("table must survive team-stats invalidation")
	}
}

func TestWarm(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, Config{}, nil)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context, leagueID, seasonID string) ([]*domain.StandingsEntry, error) {
		loads++
		if leagueID == "broken" {
			return nil, context.DeadlineExceeded
		}
		return entries(), nil
	}

	c.Warm(ctx, []WarmTarget{
		{LeagueID: "l1", SeasonID: "s1"},
		{LeagueID: "broken", SeasonID: "s1"},
		{LeagueID: "l2", SeasonID: "s1"},
	}, loader)

	if loads != 3 {
		t.Errorf("loader called %d times, want 3 (failures skipped, not aborted)", loads)
	}
	if _, ok := c.GetTable(ctx, "l1", "s1"); !ok {
		t.Error("warmed table missing")
	}
	if _, ok := c.GetTable(ctx, "broken", "s1"); ok {
		t.Error("failed target should not be cached")
	}
	if _, ok := c.GetTable(ctx, "l2", "s1"); !ok {
		t.Error("warming must continue past a failed target")
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := TableKey("l1", "s1"); got != "table:liga:l1:saison:s1" {
		t.Errorf("TableKey = %q", got)
	}
	if got := TeamStatsKey("l1", "s1", "A"); got != "teamstats:liga:l1:saison:s1:team:A" {
		t.Errorf("TeamStatsKey = %q", got)
	}
}
