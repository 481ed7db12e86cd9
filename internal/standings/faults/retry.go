package faults

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy selects how the retry delay grows per attempt.
type BackoffStrategy int

const (
	BackoffFixed BackoffStrategy = iota
	BackoffLinear
	BackoffExponential
)

// RetryPolicy defines backoff for one error family.
type RetryPolicy struct {
	Strategy BackoffStrategy
	Base     time.Duration
	Max      time.Duration
	Jitter   bool
}

// Delay returns the backoff for the given attempt (1-indexed), capped at
// Max. With Jitter the result varies by ±10% to avoid synchronized
// retries across workers.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d float64
	switch p.Strategy {
	case BackoffLinear:
		d = float64(p.Base) * float64(attempt)
	case BackoffExponential:
		d = float64(p.Base) * math.Pow(2, float64(attempt-1))
	default:
		d = float64(p.Base)
	}

	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter {
		d *= 0.9 + 0.2*rand.Float64()
	}
	return time.Duration(d)
}

var retryPolicies = map[ErrorType]RetryPolicy{
	TypeTimeout:            {BackoffExponential, 2 * time.Second, 60 * time.Second, true},
	TypeJobTimeout:         {BackoffExponential, 5 * time.Second, 2 * time.Minute, true},
	TypeNetwork:            {BackoffExponential, 1 * time.Second, 30 * time.Second, true},
	TypeConnection:         {BackoffExponential, 2 * time.Second, 60 * time.Second, true},
	TypeConcurrency:        {BackoffLinear, 500 * time.Millisecond, 10 * time.Second, true},
	TypeQueue:              {BackoffFixed, 5 * time.Second, 5 * time.Second, true},
	TypeTransaction:        {BackoffLinear, 1 * time.Second, 15 * time.Second, true},
	TypeResourceExhausted:  {BackoffExponential, 10 * time.Second, 5 * time.Minute, true},
	TypeServiceUnavailable: {BackoffExponential, 5 * time.Second, 2 * time.Minute, true},
	TypeDataAccess:         {BackoffExponential, 2 * time.Second, 60 * time.Second, true},
	TypeCalculation:        {BackoffLinear, 3 * time.Second, 30 * time.Second, true},
}

var defaultRetryPolicy = RetryPolicy{BackoffExponential, 2 * time.Second, 60 * time.Second, true}

// RetryDelay returns the backoff before the given retry attempt
// (1-indexed) of an error of the given type.
func RetryDelay(t ErrorType, attempt int) time.Duration {
	policy, ok := retryPolicies[t]
	if !ok {
		policy = defaultRetryPolicy
	}
	return policy.Delay(attempt)
}
