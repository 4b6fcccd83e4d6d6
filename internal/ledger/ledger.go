// Package ledger holds per-user currency balances. Debits are atomic
// check-and-subtract; credits are idempotent per settlement key, so a
// retried settlement can never pay twice.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

type Ledger interface {
	// Debit subtracts amount from the user's balance in one atomic step,
	// failing with InsufficientFunds when the balance does not cover it.
	Debit(ctx context.Context, userID, currency string, amount decimal.Decimal) error

	// Credit adds amount to the user's balance. The settlement key makes the
	// operation idempotent: a repeated key is a silent no-op.
	Credit(ctx context.Context, userID, currency string, amount decimal.Decimal, settlementKey string) error

	// Balance reports the user's current balance for the currency.
	Balance(ctx context.Context, userID, currency string) (decimal.Decimal, error)
}
