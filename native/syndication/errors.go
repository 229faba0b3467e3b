package syndication

import "errors"

// Typed rejection reasons surfaced by the engine. Every operation validates
// before mutating, so a returned error implies no observable state change.
// Callers match with errors.Is.
var (
	// ErrInvalidArgument rejects zero/negative amounts, bad maturities and
	// malformed asset symbols.
	ErrInvalidArgument = errors.New("syndication: invalid argument")
	// ErrInvalidState rejects an operation that is not legal in the loan's
	// current lifecycle state.
	ErrInvalidState = errors.New("syndication: operation not permitted in current state")
	// ErrUnauthorized rejects a caller lacking the required role.
	ErrUnauthorized = errors.New("syndication: unauthorized caller")
	// ErrExceedsCommitment rejects a contribution beyond the lender's
	// commitment.
	ErrExceedsCommitment = errors.New("syndication: contribution exceeds commitment")
	// ErrExceedsPrincipal rejects a drawdown beyond the loan principal.
	ErrExceedsPrincipal = errors.New("syndication: drawdown exceeds principal")
	// ErrBelowThreshold rejects closing an under-committed book or drawing an
	// under-funded loan.
	ErrBelowThreshold = errors.New("syndication: funding below required threshold")
	// ErrCustodyFailure wraps a rejected asset transfer; the enclosing
	// operation aborts with no partial application.
	ErrCustodyFailure = errors.New("syndication: asset custody transfer failed")
	// ErrNotFound indicates an unknown loan or participant.
	ErrNotFound = errors.New("syndication: not found")
	// ErrNotMatured rejects a default before the maturity instant.
	ErrNotMatured = errors.New("syndication: loan has not matured")
	// ErrMaturityPassed rejects a drawdown after the maturity instant.
	ErrMaturityPassed = errors.New("syndication: loan maturity passed")
)
