package ledger

import (
	"fmt"

	"github.com/payflowhq/payflow/app/models"
)

// transitions is the complete legal transition table. Anything not listed is
// rejected. partially_refunded re-enters itself as further partial refunds
// accrue.
var transitions = map[string][]string{
	models.TransactionStatusPending: {
		models.TransactionStatusProcessing,
		models.TransactionStatusFailed,
		models.TransactionStatusCancelled,
	},
	models.TransactionStatusProcessing: {
		models.TransactionStatusSucceeded,
		models.TransactionStatusFailed,
		models.TransactionStatusCancelled,
	},
	models.TransactionStatusSucceeded: {
		models.TransactionStatusPartiallyRefunded,
		models.TransactionStatusRefunded,
	},
	models.TransactionStatusPartiallyRefunded: {
		models.TransactionStatusPartiallyRefunded,
		models.TransactionStatusRefunded,
	},
	// failed, cancelled and refunded are terminal.
	models.TransactionStatusFailed:    {},
	models.TransactionStatusCancelled: {},
	models.TransactionStatusRefunded:  {},
}

// TransitionAllowed reports whether from -> to is in the table.
func TransitionAllowed(from, to string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether status permits no further transition.
func Terminal(status string) bool {
	allowed, ok := transitions[status]
	return ok && len(allowed) == 0
}

// checkTransition validates a requested transition. Re-applying the current
// status is reported as a no-op via alreadyThere so callers can treat
// redelivered terminal notifications idempotently.
func checkTransition(from, to string) (alreadyThere bool, err error) {
	if from == to {
		return true, nil
	}
	if !TransitionAllowed(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return false, nil
}
