package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	jitterbug "github.com/lthibault/jitterbug/v2"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/infra/blob"
	"github.com/tabellenwerk/standings/internal/infra/storage"
	"github.com/tabellenwerk/standings/internal/standings/faults"
	"github.com/tabellenwerk/standings/internal/standings/metrics"
)

// Distinct failure modes so callers can decide between retry and
// escalation.
var (
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrSnapshotCorrupted = errors.New("snapshot corrupted: checksum mismatch")
	ErrSnapshotInvalid   = errors.New("snapshot failed validation")
)

const (
	payloadVersion   = 1
	preRestorePrefix = "pre-restore backup"
	pathPrefix       = "snapshots"
)

// payload is the blob layout. Entries stay raw so the checksum verifies
// the exact stored bytes, not a re-marshaling of them.
type payload struct {
	Version  int             `json:"version"`
	Snapshot domain.Snapshot `json:"snapshot"`
	Checksum string          `json:"checksum"`
	Entries  json.RawMessage `json:"entries"`
}

// Config tunes snapshot retention.
type Config struct {
	RetentionPerTarget int           `yaml:"retention_per_target"`
	MaxAge             time.Duration `yaml:"max_age"`
}

// DefaultConfig keeps ten snapshots per target for thirty days.
var DefaultConfig = Config{
	RetentionPerTarget: 10,
	MaxAge:             30 * 24 * time.Hour,
}

// RestoreResult reports the outcome of a restore. Success is false when
// any row was rejected, even if the rest were restored.
type RestoreResult struct {
	SnapshotID    string   `json:"snapshot_id"`
	RestoredCount int      `json:"restored_count"`
	Errors        []string `json:"errors,omitempty"`
	Success       bool     `json:"success"`
}

// Service captures and restores point-in-time copies of standings.
type Service struct {
	standings storage.StandingsRepository
	txm       storage.TransactionManager
	store     blob.Store
	cfg       Config
	log       *slog.Logger
}

func NewService(
	standings storage.StandingsRepository,
	txm storage.TransactionManager,
	store blob.Store,
	cfg Config,
	log *slog.Logger,
) *Service {
	if cfg.RetentionPerTarget <= 0 {
		cfg.RetentionPerTarget = DefaultConfig.RetentionPerTarget
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig.MaxAge
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{standings: standings, txm: txm, store: store, cfg: cfg, log: log}
}

// Create captures the current standings of a target, writes the blob and
// enforces the per-target retention cap.
func (s *Service) Create(ctx context.Context, leagueID, seasonID, description string) (*domain.Snapshot, error) {
	if leagueID == "" || seasonID == "" {
		return nil, faults.New(faults.TypeValidation, faults.OpSnapshotCreate,
			"league and season ids are required")
	}

	entries, err := s.standings.Find(ctx, storage.StandingsFilter{LeagueID: leagueID, SeasonID: seasonID})
	if err != nil {
		return nil, fmt.Errorf("failed to load standings for snapshot: %w", err)
	}

	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot entries: %w", err)
	}

	now := time.Now()
	id := fmt.Sprintf("%s:%s:%d-%s", leagueID, seasonID, now.Unix(), uuid.NewString()[:8])

	snap := domain.Snapshot{
		ID:          id,
		LeagueID:    leagueID,
		SeasonID:    seasonID,
		Description: description,
		Location:    pathForID(id),
		Checksum:    checksumHex(entriesJSON),
		CreatedAt:   now,
		PreRestore:  strings.HasPrefix(description, preRestorePrefix),
	}

	raw, err := json.Marshal(payload{
		Version:  payloadVersion,
		Snapshot: snap,
		Checksum: snap.Checksum,
		Entries:  entriesJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	snap.Size = int64(len(raw))

	if err := s.store.Write(ctx, snap.Location, raw); err != nil {
		return nil, fmt.Errorf("failed to write snapshot blob: %w", err)
	}
	metrics.SnapshotsCreated.Inc()
	s.log.Info("snapshot created",
		"id", id, "league", leagueID, "season", seasonID, "entries", len(entries), "bytes", snap.Size)

	if err := s.enforceRetention(ctx, leagueID, seasonID); err != nil {
		s.log.Warn("snapshot retention trim failed", "league", leagueID, "season", seasonID, "error", err)
	}
	return &snap, nil
}

// Restore validates a snapshot and atomically replaces the target's
// standings with its rows. An automatic pre-restore backup is taken
// first unless the target snapshot is itself such a backup.
func (s *Service) Restore(ctx context.Context, id string) (*RestoreResult, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !p.Snapshot.PreRestore {
		desc := fmt.Sprintf("%s before restoring %s", preRestorePrefix, id)
		if _, err := s.Create(ctx, p.Snapshot.LeagueID, p.Snapshot.SeasonID, desc); err != nil {
			return nil, fmt.Errorf("failed to create pre-restore backup: %w", err)
		}
	}

	var entries []*domain.StandingsEntry
	if err := json.Unmarshal(p.Entries, &entries); err != nil {
		return nil, fmt.Errorf("%w: undecodable entries: %v", ErrSnapshotInvalid, err)
	}

	// Postgres aborts the whole transaction on a statement error, so rows
	// are validated up front; rejects become partial errors and the
	// surviving rows are replaced in one transaction.
	result := &RestoreResult{SnapshotID: id}
	valid := make([]*domain.StandingsEntry, 0, len(entries))
	for i, e := range entries {
		if err := validateEntry(e, p.Snapshot.LeagueID, p.Snapshot.SeasonID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		valid = append(valid, e)
	}

	err = s.txm.RunInTx(ctx, func(ctx context.Context, repos storage.TxRepos) error {
		if err := repos.Standings.Delete(ctx, storage.StandingsFilter{
			LeagueID: p.Snapshot.LeagueID,
			SeasonID: p.Snapshot.SeasonID,
		}); err != nil {
			return err
		}
		return repos.Standings.BulkUpsert(ctx, valid)
	})
	if err != nil {
		return nil, faults.Classify(fmt.Errorf("failed to replace standings: %w", err),
			faults.OpSnapshotRestore).WithTarget(p.Snapshot.LeagueID, p.Snapshot.SeasonID)
	}

	result.RestoredCount = len(valid)
	result.Success = len(result.Errors) == 0
	metrics.SnapshotsRestored.Inc()
	s.log.Info("snapshot restored",
		"id", id, "restored", result.RestoredCount, "rejected", len(result.Errors))
	return result, nil
}

// Get returns snapshot metadata without touching standings.
func (s *Service) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p.Snapshot, nil
}

// List returns a target's snapshots, newest first.
func (s *Service) List(ctx context.Context, leagueID, seasonID string) ([]*domain.Snapshot, error) {
	paths, err := s.store.List(ctx, targetPrefix(leagueID, seasonID))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snaps := make([]*domain.Snapshot, 0, len(paths))
	for _, path := range paths {
		raw, err := s.store.Read(ctx, path)
		if err != nil {
			s.log.Warn("unreadable snapshot blob skipped", "path", path, "error", err)
			continue
		}
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.log.Warn("undecodable snapshot blob skipped", "path", path, "error", err)
			continue
		}
		p.Snapshot.Size = int64(len(raw))
		snaps = append(snaps, &p.Snapshot)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })
	return snaps, nil
}

// Latest returns the newest snapshot for a target, or ErrSnapshotNotFound.
func (s *Service) Latest(ctx context.Context, leagueID, seasonID string) (*domain.Snapshot, error) {
	snaps, err := s.List(ctx, leagueID, seasonID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return snaps[0], nil
}

// Delete removes one snapshot blob.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, pathForID(id)); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return ErrSnapshotNotFound
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// CleanupAged deletes snapshots older than the configured max age across
// all targets. Returns the number removed.
func (s *Service) CleanupAged(ctx context.Context) (int, error) {
	paths, err := s.store.List(ctx, pathPrefix+"/")
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	cutoff := time.Now().Add(-s.cfg.MaxAge)
	removed := 0
	for _, path := range paths {
		info, err := s.store.Stat(ctx, path)
		if err != nil {
			continue
		}
		if info.ModTime.Before(cutoff) {
			if err := s.store.Delete(ctx, path); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		s.log.Info("aged snapshots removed", "count", removed)
	}
	return removed, nil
}

// CleanupLoop runs CleanupAged on a jittered interval until ctx is
// cancelled.
func (s *Service) CleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupAged(ctx); err != nil {
				s.log.Warn("snapshot cleanup failed", "error", err)
			}
		}
	}
}

func (s *Service) load(ctx context.Context, id string) (*payload, error) {
	raw, err := s.store.Read(ctx, pathForID(id))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return nil, fmt.Errorf("failed to read snapshot blob: %w", err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: undecodable blob: %v", ErrSnapshotInvalid, err)
	}
	if p.Snapshot.LeagueID == "" || p.Snapshot.SeasonID == "" || p.Entries == nil {
		return nil, fmt.Errorf("%w: missing required fields", ErrSnapshotInvalid)
	}

	if p.Checksum != "" && checksumHex(p.Entries) != p.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotCorrupted, id)
	}
	p.Snapshot.Size = int64(len(raw))
	return &p, nil
}

func (s *Service) enforceRetention(ctx context.Context, leagueID, seasonID string) error {
	snaps, err := s.List(ctx, leagueID, seasonID)
	if err != nil {
		return err
	}
	for _, old := range snaps[min(len(snaps), s.cfg.RetentionPerTarget):] {
		if err := s.store.Delete(ctx, old.Location); err != nil {
			s.log.Warn("failed to delete excess snapshot", "id", old.ID, "error", err)
			continue
		}
		s.log.Debug("excess snapshot removed", "id", old.ID)
	}
	return nil
}

func validateEntry(e *domain.StandingsEntry, leagueID, seasonID string) error {
	if e == nil {
		return errors.New("nil entry")
	}
	if e.EntityID == "" {
		return errors.New("missing entity id")
	}
	if e.LeagueID != leagueID || e.SeasonID != seasonID {
		return fmt.Errorf("entry targets %s/%s, snapshot targets %s/%s",
			e.LeagueID, e.SeasonID, leagueID, seasonID)
	}
	if e.Played < 0 || e.GoalsFor < 0 || e.GoalsAgainst < 0 {
		return errors.New("negative tallies")
	}
	return nil
}

// pathForID derives the blob path from the id, which embeds
// league:season:stamp. Ids are opaque to callers.
func pathForID(id string) string {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return pathPrefix + "/" + id + ".json"
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", pathPrefix, parts[0], parts[1], parts[2])
}

func targetPrefix(leagueID, seasonID string) string {
	return fmt.Sprintf("%s/%s/%s/", pathPrefix, leagueID, seasonID)
}

func checksumHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
