package ledger

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/osmelnikov/quizrush/internal/errors"
)

type PGConfig struct {
	DB *pgxpool.Pool
}

// PG is the postgres-backed ledger. Balances live in one row per
// (user, currency); settlements are journaled so credits can be retried.
type PG struct {
	db *pgxpool.Pool
}

func NewPG(c PGConfig) *PG {
	return &PG{db: c.DB}
}

func (l *PG) Debit(ctx context.Context, userID, currency string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}

	const stmt = `
UPDATE balances SET balance = balance - $3
WHERE user_id = $1 AND currency = $2 AND balance >= $3;`

	tag, err := l.db.Exec(ctx, stmt, userID, currency, amount)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInsufficientFunds),
			errors.WithMessagef("insufficient funds: user=%s currency=%s amount=%s", userID, currency, amount),
		)
	}

	return nil
}

func (l *PG) Credit(ctx context.Context, userID, currency string, amount decimal.Decimal, settlementKey string) (err error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insSettlementStmt = `
INSERT INTO settlements (settlement_id, user_id, currency, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (settlement_id) DO NOTHING;`

		upsertBalanceStmt = `
INSERT INTO balances (user_id, currency, balance)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, currency) DO UPDATE SET balance = balances.balance + EXCLUDED.balance;`
	)

	tag, err := tx.Exec(ctx, insSettlementStmt, settlementKey, userID, currency, amount)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}

	// An already-journaled key means this credit was applied before.
	if tag.RowsAffected() > 0 {
		if _, err = tx.Exec(ctx, upsertBalanceStmt, userID, currency, amount); err != nil {
			return fmt.Errorf("upsert balance: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (l *PG) Balance(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	const stmt = `SELECT balance FROM balances WHERE user_id = $1 AND currency = $2;`

	var b decimal.Decimal
	err := l.db.QueryRow(ctx, stmt, userID, currency).Scan(&b)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}

	return b, nil
}
