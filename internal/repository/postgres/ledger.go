package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"subs_engine/internal/entity"
	"subs_engine/internal/usecase"
)

// Ledger reads and moves balances kept in the balances table shared with the token ledger
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// BalanceOf returns the balance of account. Inside a transaction the balance row stays locked until commit.
func (l *Ledger) BalanceOf(ctx context.Context, account entity.Account) (int64, error) {
	q, inTx := conn(ctx, l.pool)
	query := `SELECT amount FROM balances WHERE account = $1`
	if inTx {
		query += ` FOR UPDATE`
	}
	var amount int64
	err := q.QueryRow(ctx, query, string(account)).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("balance of %s: %w", account, err)
	}
	return amount, nil
}

func (l *Ledger) Transfer(ctx context.Context, from, to entity.Account, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer %d: %w", amount, usecase.ErrInvalidParameters)
	}
	return withinTx(ctx, l.pool, func(ctx context.Context, q querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE balances SET amount = amount - $2
			WHERE account = $1 AND amount >= $2`,
			string(from), amount,
		)
		if err != nil {
			return fmt.Errorf("debit %s: %w", from, err)
		}
		if tag.RowsAffected() == 0 {
			return usecase.ErrInsufficientBalance
		}
		return credit(ctx, q, to, amount)
	})
}

// Deposit credits account out of band; it stands in for the external token supply
func (l *Ledger) Deposit(ctx context.Context, account entity.Account, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit %d: %w", amount, usecase.ErrInvalidParameters)
	}
	q, _ := conn(ctx, l.pool)
	return credit(ctx, q, account, amount)
}

func credit(ctx context.Context, q querier, account entity.Account, amount int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO balances (account, amount) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		string(account), amount,
	)
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	return nil
}
