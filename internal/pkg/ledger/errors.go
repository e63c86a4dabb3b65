package ledger

import "errors"

// The error taxonomy surfaced by ledger operations. Controllers map these to
// HTTP statuses; the job processor uses them to decide retry behavior.
var (
	// ErrValidation covers bad input: amount bounds, currency syntax,
	// deactivated customers. Never retried.
	ErrValidation = errors.New("ledger: validation failed")

	// ErrInvalidStateTransition is returned for a transition not in the
	// state machine table. The intended side effect must not be applied.
	ErrInvalidStateTransition = errors.New("ledger: invalid state transition")

	// ErrRefundExceedsBalance rejects refunds beyond the remaining
	// refundable balance. The stored refunded amount is untouched.
	ErrRefundExceedsBalance = errors.New("ledger: refund exceeds remaining balance")

	// ErrFraudBlocked refuses a high-risk intent before any gateway call.
	ErrFraudBlocked = errors.New("ledger: blocked by fraud scoring")

	// ErrNotFound means the transaction does not exist.
	ErrNotFound = errors.New("ledger: transaction not found")
)
