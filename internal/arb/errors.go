package arb

import (
	"errors"
	"fmt"
)

// Error taxonomy for the decision pipeline. Callers are expected to match with
// errors.Is and route: network errors retry at the call site, everything else
// terminates the opportunity (or the process, for configuration errors).
var (
	ErrNetwork             = errors.New("network error")
	ErrNoProviderAvailable = errors.New("no flash loan provider available")
	ErrValidationRejected  = errors.New("validation rejected")
	ErrStaleOpportunity    = errors.New("stale opportunity")
	ErrExecutionReverted   = errors.New("execution reverted")
	ErrBreakerTripped      = errors.New("circuit breaker tripped")
	ErrConfiguration       = errors.New("configuration error")
)

// RejectionError carries the stage and reason of a pipeline rejection.
type RejectionError struct {
	Stage  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("validation rejected at %s: %s", e.Stage, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrValidationRejected }

// Reject builds a stage rejection that matches ErrValidationRejected.
func Reject(stage, reason string) error {
	return &RejectionError{Stage: stage, Reason: reason}
}
