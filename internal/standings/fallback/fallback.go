package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tabellenwerk/standings/internal/standings/faults"
	"github.com/tabellenwerk/standings/internal/standings/snapshot"
)

// Notifier is the sink for escalation events. Delivery transport is the
// caller's concern; a nil notifier degrades to error logging.
type Notifier interface {
	Notify(ctx context.Context, event string, fields map[string]any)
}

// Strategy is the policy object invoked when normal processing cannot
// proceed. The read-only flag lives here as an explicit field with the
// pipeline's lifetime, never as process-wide ambient state.
type Strategy struct {
	snapshots *snapshot.Service
	notifier  Notifier
	log       *slog.Logger

	readOnly atomic.Bool
}

func NewStrategy(snapshots *snapshot.Service, notifier Notifier, log *slog.Logger) *Strategy {
	if log == nil {
		log = slog.Default()
	}
	return &Strategy{snapshots: snapshots, notifier: notifier, log: log}
}

// OnCalculationFailure rolls a target back to its most recent snapshot.
// Called for calculation/data-inconsistency failures where the stored
// table can no longer be trusted.
func (s *Strategy) OnCalculationFailure(ctx context.Context, leagueID, seasonID string, cause *faults.ClassifiedError) error {
	latest, err := s.snapshots.Latest(ctx, leagueID, seasonID)
	if err != nil {
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			s.log.Warn("no snapshot available for rollback",
				"league", leagueID, "season", seasonID, "cause", cause.Code)
			return nil
		}
		return fmt.Errorf("failed to find rollback snapshot: %w", err)
	}

	s.log.Warn("rolling back to snapshot",
		"league", leagueID, "season", seasonID, "snapshot", latest.ID, "cause", cause.Code)

	result, err := s.snapshots.Restore(ctx, latest.ID)
	if err != nil {
		return fmt.Errorf("rollback restore failed: %w", err)
	}
	if !result.Success {
		s.log.Warn("rollback restored with partial errors",
			"snapshot", latest.ID, "restored", result.RestoredCount, "errors", len(result.Errors))
	}
	return nil
}

// Escalate reports a failure that local recovery cannot handle.
func (s *Strategy) Escalate(ctx context.Context, cause *faults.ClassifiedError) {
	fields := map[string]any{
		"code":     cause.Code,
		"type":     string(cause.Type),
		"severity": string(cause.Severity),
		"league":   cause.LeagueID,
		"season":   cause.SeasonID,
		"job":      cause.JobID,
		"message":  cause.Message,
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "pipeline.escalation", fields)
		return
	}
	s.log.Error("escalation without notifier", "details", fields)
}

// EnterReadOnly switches the pipeline to serving stored tables only.
func (s *Strategy) EnterReadOnly(reason string) {
	if s.readOnly.CompareAndSwap(false, true) {
		s.log.Warn("entering read-only mode", "reason", reason)
	}
}

// ExitReadOnly resumes normal processing.
func (s *Strategy) ExitReadOnly() {
	if s.readOnly.CompareAndSwap(true, false) {
		s.log.Info("leaving read-only mode")
	}
}

// ReadOnly reports whether job admission should be refused.
func (s *Strategy) ReadOnly() bool {
	return s.readOnly.Load()
}
