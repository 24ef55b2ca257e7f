// Package domain contains the core domain models for the content pipeline.
package domain

import "errors"

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrValidation is returned for bad input. Jobs failing validation are never retried.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition is returned when a job transition is not allowed
// from the job's current status.
var ErrInvalidTransition = errors.New("invalid job transition")

// ErrRetryExhausted is returned when a retry is scheduled past maxRetries.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// ErrQuotaExceeded is returned when a publishing target has no remaining
// daily quota. Jobs failing on quota are not retried automatically.
var ErrQuotaExceeded = errors.New("daily post quota exceeded")

// ErrAlreadyExists is returned when a uniqueness guard rejects a write
// (duplicate generation record, duplicate post for a target).
var ErrAlreadyExists = errors.New("entity already exists")

// ErrConflict is returned when a conditional update touched no rows because
// another worker transitioned the entity first.
var ErrConflict = errors.New("concurrent update conflict")

// transientError is implemented by collaborator errors that are safe to retry
// (network failures, timeouts, rate limits).
type transientError interface {
	Transient() bool
}

// Retryable reports whether a processing error should be scheduled for retry.
// Validation, not-found, quota and exhaustion failures are terminal; errors
// carrying a Transient() hint decide for themselves; anything else is assumed
// transient and retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrRetryExhausted) ||
		errors.Is(err, ErrAlreadyExists) {
		return false
	}
	var te transientError
	if errors.As(err, &te) {
		return te.Transient()
	}
	return true
}

// FailureKind classifies a processing error for job bookkeeping.
type FailureKind string

const (
	FailureValidation FailureKind = "validation"
	FailureNotFound   FailureKind = "not_found"
	FailureQuota      FailureKind = "quota_exceeded"
	FailureExhausted  FailureKind = "retry_exhausted"
	FailureDuplicate  FailureKind = "duplicate"
	FailureTransient  FailureKind = "transient"
)

// ClassifyFailure maps a processing error to its failure kind.
func ClassifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, ErrValidation):
		return FailureValidation
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrQuotaExceeded):
		return FailureQuota
	case errors.Is(err, ErrRetryExhausted):
		return FailureExhausted
	case errors.Is(err, ErrAlreadyExists):
		return FailureDuplicate
	default:
		return FailureTransient
	}
}
