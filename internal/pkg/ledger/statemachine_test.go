package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflowhq/payflow/app/models"
)

func TestTransitionAllowed(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"pending to processing", models.TransactionStatusPending, models.TransactionStatusProcessing, true},
		{"pending to failed", models.TransactionStatusPending, models.TransactionStatusFailed, true},
		{"pending to cancelled", models.TransactionStatusPending, models.TransactionStatusCancelled, true},
		{"pending to succeeded skips processing", models.TransactionStatusPending, models.TransactionStatusSucceeded, false},
		{"processing to succeeded", models.TransactionStatusProcessing, models.TransactionStatusSucceeded, true},
		{"processing to failed", models.TransactionStatusProcessing, models.TransactionStatusFailed, true},
		{"processing back to pending", models.TransactionStatusProcessing, models.TransactionStatusPending, false},
		{"succeeded to partially refunded", models.TransactionStatusSucceeded, models.TransactionStatusPartiallyRefunded, true},
		{"succeeded to refunded", models.TransactionStatusSucceeded, models.TransactionStatusRefunded, true},
		{"succeeded to failed", models.TransactionStatusSucceeded, models.TransactionStatusFailed, false},
		{"partially refunded re-enters itself", models.TransactionStatusPartiallyRefunded, models.TransactionStatusPartiallyRefunded, true},
		{"partially refunded to refunded", models.TransactionStatusPartiallyRefunded, models.TransactionStatusRefunded, true},
		{"partially refunded back to succeeded", models.TransactionStatusPartiallyRefunded, models.TransactionStatusSucceeded, false},
		{"failed is terminal", models.TransactionStatusFailed, models.TransactionStatusProcessing, false},
		{"cancelled is terminal", models.TransactionStatusCancelled, models.TransactionStatusPending, false},
		{"refunded is terminal", models.TransactionStatusRefunded, models.TransactionStatusPartiallyRefunded, false},
		{"unknown source status", "bogus", models.TransactionStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, TransitionAllowed(tt.from, tt.to))
		})
	}
}

// Every target named anywhere in the table must itself be a known state, so
// a transition can never strand a transaction outside the machine.
func TestTransitionTableClosed(t *testing.T) {
	for from, targets := range transitions {
		for _, to := range targets {
			_, known := transitions[to]
			require.True(t, known, "transition %s -> %s leaves the table", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(models.TransactionStatusFailed))
	assert.True(t, Terminal(models.TransactionStatusCancelled))
	assert.True(t, Terminal(models.TransactionStatusRefunded))

	assert.False(t, Terminal(models.TransactionStatusPending))
	assert.False(t, Terminal(models.TransactionStatusProcessing))
	assert.False(t, Terminal(models.TransactionStatusSucceeded))
	assert.False(t, Terminal(models.TransactionStatusPartiallyRefunded))
	assert.False(t, Terminal("bogus"))
}

func TestCheckTransition(t *testing.T) {
	t.Run("legal transition", func(t *testing.T) {
		already, err := checkTransition(models.TransactionStatusPending, models.TransactionStatusProcessing)
		require.NoError(t, err)
		assert.False(t, already)
	})

	t.Run("same status is an idempotent no-op", func(t *testing.T) {
		already, err := checkTransition(models.TransactionStatusSucceeded, models.TransactionStatusSucceeded)
		require.NoError(t, err)
		assert.True(t, already)
	})

	t.Run("redelivered terminal notification is a no-op", func(t *testing.T) {
		already, err := checkTransition(models.TransactionStatusFailed, models.TransactionStatusFailed)
		require.NoError(t, err)
		assert.True(t, already)
	})

	t.Run("illegal transition is rejected", func(t *testing.T) {
		_, err := checkTransition(models.TransactionStatusRefunded, models.TransactionStatusProcessing)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidStateTransition))
	})
}
