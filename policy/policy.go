// Package policy defines per-node failure handling: how many attempts a
// node gets, how long to back off between them, how long a single attempt
// may run, and how errors are classified into retryable versus fatal.
package policy

import (
	"context"
	"errors"
	"time"
)

// Class is the outcome classification of a failed attempt.
type Class int

const (
	// Retryable failures are eligible for another attempt, budget permitting.
	Retryable Class = iota
	// Fatal failures terminate the node immediately.
	Fatal
)

// Defaults applied by Normalize when a field is left zero.
const (
	DefaultMaxAttempts       = 1
	DefaultBackoffBase       = 100 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
)

// Policy configures failure handling for a single node. The zero value is
// usable: Normalize fills in defaults.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first attempt.
	MaxAttempts int
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration
	// BackoffMultiplier scales the delay on each subsequent retry.
	BackoffMultiplier float64
	// Timeout bounds a single attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// Classify overrides the default classification of executor errors.
	// It is never called for errors already marked permanent or for
	// deadline errors, which have fixed classifications.
	Classify func(error) Class
}

// Normalize returns a copy with zero fields replaced by defaults.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return p
}

// Backoff returns the delay to wait after the given failed attempt,
// following base * multiplier^(attempt-1). Attempts are 1-based.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BackoffBase)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffMultiplier
	}
	return time.Duration(d)
}

// ClassOf classifies an attempt error. Permanent errors are always fatal.
// Deadline errors are always retryable; the attempt budget decides when a
// repeatedly timing-out node becomes failed. Everything else goes through
// the configured classifier, defaulting to retryable.
func (p Policy) ClassOf(err error) Class {
	if IsPermanent(err) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}
	if p.Classify != nil {
		return p.Classify(err)
	}
	return Retryable
}

// ShouldRetry reports whether another attempt should be scheduled after
// the given 1-based attempt failed with err.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	return p.ClassOf(err) == Retryable && attempt < p.MaxAttempts
}

// permanentError marks an error as not worth retrying.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that ClassOf reports it as Fatal regardless of
// the attempt budget or classifier. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err or anything it wraps was marked with
// Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
