package service

import (
	"errors"
	"math"
	"time"
)

// Retry policy defaults.
const (
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = time.Second
	DefaultBackoffMultiplier = 2.0
)

// RetryPolicy controls how many times and how far apart an operation is retried.
// Delays grow geometrically with no jitter and no cap.
type RetryPolicy struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// DefaultRetryPolicy returns three retries starting at one second, doubling each time.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// Validate rejects policies that cannot be applied as written.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("retry policy: max retries cannot be negative")
	}
	if p.RetryDelay < 0 {
		return errors.New("retry policy: retry delay cannot be negative")
	}
	if p.BackoffMultiplier <= 0 || math.IsNaN(p.BackoffMultiplier) || math.IsInf(p.BackoffMultiplier, 0) {
		return errors.New("retry policy: backoff multiplier must be a positive number")
	}
	return nil
}

// normalized clamps out-of-range fields to usable values.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	if p.BackoffMultiplier <= 0 || math.IsNaN(p.BackoffMultiplier) || math.IsInf(p.BackoffMultiplier, 0) {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return p
}

// MaxAttempts is the upper bound on operation invocations.
func (p RetryPolicy) MaxAttempts() int {
	return p.normalized().MaxRetries + 1
}

// DelayAfter returns the sleep following failed attempt n (1-based):
// RetryDelay * BackoffMultiplier^(n-1). Values past the int64 range saturate.
func (p RetryPolicy) DelayAfter(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 || p.RetryDelay == 0 {
		return 0
	}

	delay := float64(p.RetryDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if math.IsInf(delay, 0) || delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
