package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/osmelnikov/quizrush/internal/errors"
)

// Memory is an in-memory ledger with the same semantics as PG, used in
// tests and the standalone dev mode.
type Memory struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	settled  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]decimal.Decimal),
		settled:  make(map[string]bool),
	}
}

// SetBalance overwrites the user's balance. Test setup helper.
func (l *Memory) SetBalance(userID, currency string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[key(userID, currency)] = balance
}

func (l *Memory) Debit(_ context.Context, userID, currency string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(userID, currency)
	b := l.balances[k]
	if b.LessThan(amount) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInsufficientFunds),
			errors.WithMessagef("insufficient funds: user=%s currency=%s amount=%s", userID, currency, amount),
		)
	}

	l.balances[k] = b.Sub(amount)
	return nil
}

func (l *Memory) Credit(_ context.Context, userID, currency string, amount decimal.Decimal, settlementKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.settled[settlementKey] {
		return nil
	}
	l.settled[settlementKey] = true

	k := key(userID, currency)
	l.balances[k] = l.balances[k].Add(amount)
	return nil
}

func (l *Memory) Balance(_ context.Context, userID, currency string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[key(userID, currency)], nil
}

func key(userID, currency string) string {
	return userID + "/" + currency
}
