// Package errors provides failure classification for the reliability core.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a failure below the orchestrator boundary.
type FailureKind int

const (
	// KindUnknown represents an unclassified failure.
	KindUnknown FailureKind = iota
	// KindTransient represents a dependency call that returned an error.
	// Counted toward the circuit failure tally; recovered by fallback.
	KindTransient
	// KindTimeout represents an operation that exceeded its deadline.
	// Treated identically to KindTransient for circuit counting.
	KindTimeout
	// KindCircuitOpen represents a denial by an open circuit with no
	// fallback supplied. The only condition under which Execute itself
	// reports an unrecovered error.
	KindCircuitOpen
	// KindCascadeExhausted represents a cascade in which every strategy
	// failed or was rejected. Recovered locally by the emergency strategy.
	KindCascadeExhausted
)

// ReliabilityError wraps a failure with its classification.
type ReliabilityError struct {
	Kind        FailureKind
	Dependency  string
	OriginalErr error
	Message     string
}

// Error implements the error interface.
func (e *ReliabilityError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.Dependency, e.OriginalErr)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.Dependency)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *ReliabilityError) Unwrap() error {
	return e.OriginalErr
}

// NewTransient wraps a dependency error as a transient failure.
func NewTransient(dependency string, err error) *ReliabilityError {
	return &ReliabilityError{
		Kind:        KindTransient,
		Dependency:  dependency,
		OriginalErr: err,
		Message:     "transient dependency failure",
	}
}

// NewTimeout wraps a deadline expiry as a timeout failure.
func NewTimeout(dependency string, err error) *ReliabilityError {
	return &ReliabilityError{
		Kind:        KindTimeout,
		Dependency:  dependency,
		OriginalErr: err,
		Message:     "operation timed out",
	}
}

// NewCircuitOpen reports a denial by an open circuit.
func NewCircuitOpen(dependency string) *ReliabilityError {
	return &ReliabilityError{
		Kind:       KindCircuitOpen,
		Dependency: dependency,
		Message:    "circuit breaker is open",
	}
}

// NewCascadeExhausted reports that every fallback strategy was rejected.
func NewCascadeExhausted(err error) *ReliabilityError {
	return &ReliabilityError{
		Kind:        KindCascadeExhausted,
		Dependency:  "fallback_cascade",
		OriginalErr: err,
		Message:     "all fallback strategies exhausted",
	}
}

// Classify maps an arbitrary error from a protected call to its failure kind.
// Deadline expiry classifies as timeout; everything else as transient.
func Classify(dependency string, err error) *ReliabilityError {
	if err == nil {
		return nil
	}

	var relErr *ReliabilityError
	if errors.As(err, &relErr) {
		return relErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeout(dependency, err)
	}

	return NewTransient(dependency, err)
}

// IsTimeout checks whether the error is a timeout failure.
func IsTimeout(err error) bool {
	var relErr *ReliabilityError
	return errors.As(err, &relErr) && relErr.Kind == KindTimeout
}

// IsCircuitOpen checks whether the error is an open-circuit denial.
func IsCircuitOpen(err error) bool {
	var relErr *ReliabilityError
	return errors.As(err, &relErr) && relErr.Kind == KindCircuitOpen
}

// IsCascadeExhausted checks whether the error is a cascade exhaustion.
func IsCascadeExhausted(err error) bool {
	var relErr *ReliabilityError
	return errors.As(err, &relErr) && relErr.Kind == KindCascadeExhausted
}
