package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorType
	}{
		{errors.New(`pq: duplicate key value violates unique constraint "standings_pkey"`), TypeConstraintViolation},
		{errors.New("could not serialize access due to concurrent update"), TypeTransaction},
		{errors.New("dial tcp 10.0.0.1:5432: connection refused"), TypeConnection},
		{errors.New("i/o timeout"), TypeTimeout},
		{errors.New("too many connections"), TypeResourceExhausted},
		{errors.New("row already locked"), TypeConcurrency},
		{errors.New("invalid season id"), TypeValidation},
		{errors.New("league not found"), TypeMissingData},
		{errors.New("network is unreachable"), TypeNetwork},
		{errors.New("503 Service Unavailable"), TypeServiceUnavailable},
		{errors.New("permission denied for table standings"), TypePermissionDenied},
		{errors.New("sql: no rows in result set"), TypeMissingData},
		{errors.New("something entirely different"), TypeUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err, OpCalculate); got.Type != tt.expect {
			t.Errorf("Classify(%q) = %v, want %v", tt.err, got.Type, tt.expect)
		}
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil, OpCalculate); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestClassifyExplicitTypeWins(t *testing.T) {
	// "timeout" in the message would match keywords; the explicit type on
	// the wrapped error must win.
	inner := New(TypeDataInconsistency, OpCalculate, "timeout while checking totals")
	wrapped := fmt.Errorf("job run: %w", inner)

	got := Classify(wrapped, OpCalculate)
	if got.Type != TypeDataInconsistency {
		t.Errorf("Classify(wrapped) = %v, want %v", got.Type, TypeDataInconsistency)
	}
	if got != inner {
		t.Error("Classify should return the original classified error")
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if got := Classify(fmt.Errorf("run: %w", context.DeadlineExceeded), OpCalculate); got.Type != TypeTimeout {
		t.Errorf("deadline exceeded classified as %v, want %v", got.Type, TypeTimeout)
	}
	if got := Classify(fmt.Errorf("run: %w", context.Canceled), OpCalculate); got.Type != TypeJobCancelled {
		t.Errorf("cancellation classified as %v, want %v", got.Type, TypeJobCancelled)
	}
}

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		t      ErrorType
		expect Severity
	}{
		{TypeValidation, SeverityLow},
		{TypeMissingData, SeverityLow},
		{TypeJobTimeout, SeverityMedium},
		{TypeConnection, SeverityHigh},
		{TypeCalculation, SeverityHigh},
		{TypeDataInconsistency, SeverityCritical},
		{TypeConfiguration, SeverityCritical},
		{TypeUnknown, SeverityMedium},
	}
	for _, tt := range tests {
		if got := DetermineSeverity(tt.t); got != tt.expect {
			t.Errorf("DetermineSeverity(%v) = %v, want %v", tt.t, got, tt.expect)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{TypeTimeout, TypeConnection, TypeDataAccess, TypeCalculation, TypeUnknown}
	for _, typ := range retryable {
		if !IsRetryable(typ) {
			t.Errorf("IsRetryable(%v) = false, want true", typ)
		}
	}
	permanent := []ErrorType{TypeValidation, TypeInvalidInput, TypeConfiguration, TypeDataInconsistency, TypeJobCancelled}
	for _, typ := range permanent {
		if IsRetryable(typ) {
			t.Errorf("IsRetryable(%v) = true, want false", typ)
		}
	}
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	cause := errors.New("pq: connection reset")
	ce := Wrap(TypeConnection, OpCalculate, cause)
	if !errors.Is(ce, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}
