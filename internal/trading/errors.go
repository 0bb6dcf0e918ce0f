package trading

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the broker's TR acknowledgement does not
	// arrive within the bridge wait. The request itself remains outstanding
	// at the broker; a late acknowledgement is accepted and discarded.
	ErrTimeout = errors.New("timed out waiting for broker acknowledgement")

	// ErrUnknownOrder is returned for operations against an order id the
	// store has never seen.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrOrderTerminal is returned when an amendment or policy targets an
	// order that already reached a terminal status.
	ErrOrderTerminal = errors.New("order already in terminal status")

	// ErrNotMonitored is returned when a policy is configured for an order
	// that was never put under monitoring.
	ErrNotMonitored = errors.New("order is not monitored")

	// ErrDuplicateOrder guards order id uniqueness at record creation.
	ErrDuplicateOrder = errors.New("order id already exists")
)

// ValidationError reports a malformed request, rejected before any network
// interaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GatewayRejectedError reports a synchronous refusal by the broker: either a
// nonzero immediate result code from the send, or an acknowledgement that
// carried no order number.
type GatewayRejectedError struct {
	Code   int
	Reason string
}

func (e *GatewayRejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("broker rejected order: %s", e.Reason)
	}
	return fmt.Sprintf("broker rejected order: result code %d", e.Code)
}

// IsGatewayRejected reports whether err is a GatewayRejectedError.
func IsGatewayRejected(err error) bool {
	var ge *GatewayRejectedError
	return errors.As(err, &ge)
}

// PersistenceError reports a failed history write. Durability of history is
// best-effort: callers log it and never roll back in-memory state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
