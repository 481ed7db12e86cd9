package faults

import (
	"context"
	"errors"
	"strings"
)

// keyword groups, checked in order. First hit wins, so the more specific
// families sit above the generic data-access bucket.
var keywordFamilies = []struct {
	t        ErrorType
	keywords []string
}{
	{TypeConstraintViolation, []string{"duplicate key", "unique constraint", "foreign key", "violates"}},
	{TypeTransaction, []string{"transaction", "deadlock", "serialization failure", "could not serialize"}},
	{TypeConnection, []string{"connection refused", "connection reset", "broken pipe", "no such host", "dial tcp"}},
	{TypeTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{TypeResourceExhausted, []string{"too many", "resource exhausted", "out of memory", "quota"}},
	{TypeConcurrency, []string{"concurrent", "lock not available", "already locked"}},
	{TypeValidation, []string{"validation", "invalid", "required field", "must be", "malformed"}},
	{TypeMissingData, []string{"not found", "no rows", "missing"}},
	{TypeNetwork, []string{"network", "unreachable", "eof"}},
	{TypeServiceUnavailable, []string{"unavailable", "service is down", "503"}},
	{TypeConfiguration, []string{"config", "not configured", "disabled"}},
	{TypePermissionDenied, []string{"permission denied", "unauthorized", "forbidden"}},
	{TypeDataAccess, []string{"sql", "database", "pq:", "postgres", "redis"}},
}

// Classify folds an arbitrary error into the closed taxonomy. An explicit
// *ClassifiedError anywhere in the chain wins over keyword heuristics;
// context cancellation and deadline errors are recognized structurally.
func Classify(err error, op Op) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(TypeTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(TypeJobCancelled, op, err)
	}

	msg := strings.ToLower(err.Error())
	for _, fam := range keywordFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(msg, kw) {
				return Wrap(fam.t, op, err)
			}
		}
	}

	return Wrap(TypeUnknown, op, err)
}

// DetermineSeverity is a pure function of the error type.
func DetermineSeverity(t ErrorType) Severity {
	switch t {
	case TypeValidation, TypeInvalidInput, TypeMissingData, TypeFeatureDisabled:
		return SeverityLow
	case TypeTimeout, TypeJobTimeout, TypeNetwork, TypeConcurrency, TypeQueue, TypeJobCancelled:
		return SeverityMedium
	case TypeDataAccess, TypeConnection, TypeTransaction, TypeConstraintViolation,
		TypeCalculation, TypeQueueFull, TypeResourceExhausted, TypeServiceUnavailable,
		TypePermissionDenied:
		return SeverityHigh
	case TypeDataInconsistency, TypeConfiguration:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// IsRetryable is a pure function of the error type. Validation and
// configuration failures are never retried; transient infrastructure
// failures are.
func IsRetryable(t ErrorType) bool {
	switch t {
	case TypeTimeout, TypeJobTimeout, TypeNetwork, TypeConnection, TypeConcurrency,
		TypeQueue, TypeServiceUnavailable, TypeTransaction, TypeResourceExhausted,
		TypeDataAccess, TypeCalculation, TypeUnknown:
		return true
	default:
		return false
	}
}
