package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/standings/metrics"
)

// Backend is the key/value surface the cache needs. The redis client
// satisfies it; tests use an in-process map.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Config holds cache TTLs.
type Config struct {
	TableTTL     time.Duration `yaml:"table_ttl"`
	TeamStatsTTL time.Duration `yaml:"team_stats_ttl"`
}

// DefaultConfig keeps tables fresh and per-team aggregates longer.
var DefaultConfig = Config{
	TableTTL:     2 * time.Minute,
	TeamStatsTTL: 15 * time.Minute,
}

// Cache is the standings cache layer. It never fails calculation: a nil
// or unreachable backend degrades every read to a miss and every write
// to a no-op.
type Cache struct {
	backend Backend
	cfg     Config
	log     *slog.Logger
}

// New builds a cache over the given backend; backend may be nil.
func New(backend Backend, cfg Config, log *slog.Logger) *Cache {
	if cfg.TableTTL <= 0 {
		cfg.TableTTL = DefaultConfig.TableTTL
	}
	if cfg.TeamStatsTTL <= 0 {
		cfg.TeamStatsTTL = DefaultConfig.TeamStatsTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{backend: backend, cfg: cfg, log: log}
}

// Key helpers

func TableKey(leagueID, seasonID string) string {
	return fmt.Sprintf("table:liga:%s:saison:%s", leagueID, seasonID)
}

func TeamStatsKey(leagueID, seasonID, entityID string) string {
	return fmt.Sprintf("teamstats:liga:%s:saison:%s:team:%s", leagueID, seasonID, entityID)
}

func targetPattern(leagueID, seasonID string) string {
	return fmt.Sprintf("*:liga:%s:saison:%s*", leagueID, seasonID)
}

// GetTable returns the cached table for a target, or found=false.
func (c *Cache) GetTable(ctx context.Context, leagueID, seasonID string) ([]*domain.StandingsEntry, bool) {
	var entries []*domain.StandingsEntry
	if !c.getJSON(ctx, TableKey(leagueID, seasonID), "table", &entries) {
		return nil, false
	}
	return entries, true
}

// SetTable caches a computed table with the short table TTL.
func (c *Cache) SetTable(ctx context.Context, leagueID, seasonID string, entries []*domain.StandingsEntry) {
	c.setJSON(ctx, TableKey(leagueID, seasonID), entries, c.cfg.TableTTL)
}

// GetTeamStats returns cached per-team aggregates, or found=false.
func (c *Cache) GetTeamStats(ctx context.Context, leagueID, seasonID, entityID string) (*domain.StandingsEntry, bool) {
	var entry domain.StandingsEntry
	if !c.getJSON(ctx, TeamStatsKey(leagueID, seasonID, entityID), "teamstats", &entry) {
		return nil, false
	}
	return &entry, true
}

// SetTeamStats caches per-team aggregates with the longer stats TTL.
func (c *Cache) SetTeamStats(ctx context.Context, leagueID, seasonID string, entry *domain.StandingsEntry) {
	c.setJSON(ctx, TeamStatsKey(leagueID, seasonID, entry.EntityID), entry, c.cfg.TeamStatsTTL)
}

// InvalidateTarget removes every cached value for a (league, season)
// pair, table and per-team aggregates alike.
func (c *Cache) InvalidateTarget(ctx context.Context, leagueID, seasonID string) {
	c.InvalidatePattern(ctx, targetPattern(leagueID, seasonID))
}

// InvalidateTeamStats removes only the narrower per-team aggregates.
func (c *Cache) InvalidateTeamStats(ctx context.Context, leagueID, seasonID string) {
	c.InvalidatePattern(ctx, fmt.Sprintf("teamstats:liga:%s:saison:%s:*", leagueID, seasonID))
}

// InvalidatePattern removes all keys matching a glob pattern.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) {
	if c.backend == nil {
		return
	}
	keys, err := c.backend.Keys(ctx, pattern)
	if err != nil {
		c.log.Debug("cache pattern scan failed", "pattern", pattern, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.backend.Del(ctx, keys...); err != nil {
		c.log.Debug("cache invalidation failed", "pattern", pattern, "error", err)
	}
}

// WarmTarget describes one target to preload, most important first.
type WarmTarget struct {
	LeagueID string `yaml:"league_id"`
	SeasonID string `yaml:"season_id"`
}

// TableLoader computes a table for warming; the engine provides it.
type TableLoader func(ctx context.Context, leagueID, seasonID string) ([]*domain.StandingsEntry, error)

// Warm proactively loads and caches the given hot targets in order.
// Failures are logged and skipped; warming is best-effort.
func (c *Cache) Warm(ctx context.Context, targets []WarmTarget, load TableLoader) {
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		entries, err := load(ctx, t.LeagueID, t.SeasonID)
		if err != nil {
			c.log.Warn("cache warm-up failed for target",
				"league", t.LeagueID, "season", t.SeasonID, "error", err)
			continue
		}
		c.SetTable(ctx, t.LeagueID, t.SeasonID, entries)
	}
}

func (c *Cache) getJSON(ctx context.Context, key, kind string, out any) bool {
	if c.backend == nil {
		metrics.CacheMisses.WithLabelValues(kind).Inc()
		return false
	}
	raw, found, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Debug("cache get failed", "key", key, "error", err)
		metrics.CacheMisses.WithLabelValues(kind).Inc()
		return false
	}
	if !found {
		metrics.CacheMisses.WithLabelValues(kind).Inc()
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.log.Debug("cache entry corrupt, dropping", "key", key, "error", err)
		_ = c.backend.Del(ctx, key)
		metrics.CacheMisses.WithLabelValues(kind).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(kind).Inc()
	return true
}

func (c *Cache) setJSON(ctx context.Context, key string, val any, ttl time.Duration) {
	if c.backend == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		c.log.Debug("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, string(raw), ttl); err != nil {
		c.log.Debug("cache set failed", "key", key, "error", err)
	}
}
