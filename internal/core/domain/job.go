package domain

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a calculation job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobPriority orders jobs within the queue. Higher runs first.
type JobPriority int

const (
	PriorityLow JobPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p JobPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// JobError is one entry of a job's ordered error history.
type JobError struct {
	At      time.Time `json:"at"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// CalculationJob is a request to recompute the standings of one
// (leagueID, seasonID) target. At most one non-terminal job exists per
// target; the queue manager enforces this with a pair lock.
type CalculationJob struct {
	ID       string      `json:"id"        db:"id"`
	LeagueID string      `json:"league_id" db:"league_id"`
	SeasonID string      `json:"season_id" db:"season_id"`
	Priority JobPriority `json:"priority"  db:"priority"`
	Status   JobStatus   `json:"status"    db:"status"`

	Trigger     string `json:"trigger"     db:"trigger"`
	Description string `json:"description" db:"description"`

	CreatedAt   time.Time  `json:"created_at"             db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	RetryCount   int        `json:"retry_count"            db:"retry_count"`
	MaxRetries   int        `json:"max_retries"            db:"max_retries"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	TimeoutCount int        `json:"timeout_count"          db:"timeout_count"`

	Errors []JobError `json:"errors,omitempty" db:"-"`
}

// TargetKey identifies the (league, season) pair the job operates on.
func (j *CalculationJob) TargetKey() string {
	return TargetKey(j.LeagueID, j.SeasonID)
}

// TargetKey builds the pair-lock key for a league/season target.
func TargetKey(leagueID, seasonID string) string {
	return leagueID + ":" + seasonID
}

// RecordError appends to the job's ordered error history.
func (j *CalculationJob) RecordError(errType, msg string) {
	j.Errors = append(j.Errors, JobError{At: time.Now(), Type: errType, Message: msg})
}
