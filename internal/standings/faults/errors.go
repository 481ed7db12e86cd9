package faults

import "fmt"

// ErrorType is the closed taxonomy of pipeline failures. Classification is
// by kind, not by Go error type: collaborators may return anything, the
// classifier folds it into one of these.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"
	TypeInvalidInput ErrorType = "invalid_input"

	TypeDataAccess          ErrorType = "data_access"
	TypeConnection          ErrorType = "connection"
	TypeTransaction         ErrorType = "transaction"
	TypeConstraintViolation ErrorType = "constraint_violation"

	TypeTimeout           ErrorType = "timeout"
	TypeConcurrency       ErrorType = "concurrency"
	TypeResourceExhausted ErrorType = "resource_exhausted"

	TypeQueue        ErrorType = "queue"
	TypeJobTimeout   ErrorType = "job_timeout"
	TypeJobCancelled ErrorType = "job_cancelled"
	TypeQueueFull    ErrorType = "queue_full"

	TypeCalculation       ErrorType = "calculation"
	TypeDataInconsistency ErrorType = "data_inconsistency"
	TypeMissingData       ErrorType = "missing_data"

	TypeNetwork            ErrorType = "network"
	TypeServiceUnavailable ErrorType = "service_unavailable"

	TypeConfiguration    ErrorType = "configuration"
	TypeFeatureDisabled  ErrorType = "feature_disabled"
	TypePermissionDenied ErrorType = "permission_denied"

	TypeUnknown ErrorType = "unknown"
)

// Severity grades how loudly a failure should be surfaced.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ClassifiedError carries the taxonomy verdict plus enough originating
// context for a caller to decide on manual reprocessing.
type ClassifiedError struct {
	Type      ErrorType
	Severity  Severity
	Code      string
	Message   string
	Retryable bool
	Details   map[string]any

	Op            Op
	LeagueID      string
	SeasonID      string
	JobID         string
	CorrelationID string

	Err error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Code, e.Type, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Type, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// WithTarget attaches the league/season the error originated from.
func (e *ClassifiedError) WithTarget(leagueID, seasonID string) *ClassifiedError {
	e.LeagueID = leagueID
	e.SeasonID = seasonID
	return e
}

// WithJob attaches the owning job id.
func (e *ClassifiedError) WithJob(jobID string) *ClassifiedError {
	e.JobID = jobID
	return e
}

// New builds a ClassifiedError of an explicit type, bypassing the
// heuristic classifier entirely.
func New(t ErrorType, op Op, msg string) *ClassifiedError {
	return &ClassifiedError{
		Type:      t,
		Severity:  DetermineSeverity(t),
		Code:      codeFor(t),
		Message:   msg,
		Retryable: IsRetryable(t),
		Op:        op,
	}
}

// Wrap is New with an underlying cause.
func Wrap(t ErrorType, op Op, err error) *ClassifiedError {
	ce := New(t, op, "")
	if err != nil {
		ce.Message = err.Error()
		ce.Err = err
	}
	return ce
}

func codeFor(t ErrorType) string {
	return "ERR_" + upperSnake(string(t))
}

func upperSnake(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}
