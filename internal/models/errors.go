package models

import "fmt"

// Sentinel errors forming the error taxonomy. Callers should use
// errors.Is against these, or errors.As against the typed variants below.
var (
	// ErrBadOptionSymbol is an InputError: a malformed OCC-21 symbol.
	ErrBadOptionSymbol = fmt.Errorf("bad option symbol")

	// ErrIVNotConverged is a numeric failure in the Newton-Raphson/bisection
	// solver; treated by signal generators as PreconditionNotMet (no signal).
	ErrIVNotConverged = fmt.Errorf("implied volatility did not converge")

	// ErrIVHistoryInsufficient signals fewer than 20 daily IV samples.
	ErrIVHistoryInsufficient = fmt.Errorf("insufficient IV history (need >= 20 samples)")

	// ErrRiskDenied means a circuit breaker tripped; no side effects occur.
	ErrRiskDenied = fmt.Errorf("risk gate denied")

	// ErrBrokerTransient is a network/5xx failure eligible for retry.
	ErrBrokerTransient = fmt.Errorf("transient broker error")

	// ErrBrokerRejected is a terminal broker policy rejection; not retried.
	ErrBrokerRejected = fmt.Errorf("broker rejected order")

	// ErrStoreUnavailable means the persistence adapter could not complete
	// an operation; the JSON store returns it on the first failure, without
	// retrying.
	ErrStoreUnavailable = fmt.Errorf("store unavailable")

	// ErrExecutionRejected surfaces a non-terminal (timeout) or rejected
	// single-leg order placement.
	ErrExecutionRejected = fmt.Errorf("execution rejected")
)

// InvariantError is fatal: a detected violation of a data-model invariant.
// It is never retried or self-healed; the caller must log and abort the
// operation for operator attention.
type InvariantError struct {
	Entity string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated on %s: %s", e.Entity, e.Detail)
}

// NewInvariantError constructs an InvariantError.
func NewInvariantError(entity, detail string) error {
	return &InvariantError{Entity: entity, Detail: detail}
}

// PreconditionError represents "no signal" rather than a true error: a
// signal generator's preconditions were not met (outside entry window,
// insufficient history, fewer than six momentum conditions, etc).
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition not met: %s", e.Reason)
}

// NewPreconditionError constructs a PreconditionError.
func NewPreconditionError(reason string) error {
	return &PreconditionError{Reason: reason}
}
