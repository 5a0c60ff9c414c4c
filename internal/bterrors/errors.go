// Package bterrors defines the machine-readable error vocabulary shared
// across the backtest engine, per spec.md §7.
package bterrors

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category. Callers should use errors.As
// to recover a *Error and branch on Kind rather than matching message
// strings.
type Kind string

const (
	KindConfigInvalid            Kind = "CONFIG_INVALID"
	KindSafetyBlocked            Kind = "SAFETY_BLOCKED"
	KindNoData                   Kind = "NO_DATA"
	KindInsufficientData         Kind = "INSUFFICIENT_DATA"
	KindCandleInvariantViolated  Kind = "CANDLE_INVARIANT_VIOLATED"
	KindStrategyEvaluationFailed Kind = "STRATEGY_EVALUATION_FAILED"
	KindOrderRejected            Kind = "ORDER_REJECTED"
	KindCircuitBreakerTripped    Kind = "CIRCUIT_BREAKER_TRIPPED"
	KindCapitalProtectionTripped Kind = "CAPITAL_PROTECTION_TRIPPED"
)

// Error wraps an underlying cause with a machine-readable Kind and a
// human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given Kind, unwrapping
// through any wrapper chain via errors.As semantics (callers typically
// use errors.As directly; this is a convenience for the common case).
func Is(err error, kind Kind) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == kind
}
