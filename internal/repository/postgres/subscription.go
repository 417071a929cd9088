package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"subs_engine/internal/entity"
	"subs_engine/internal/usecase"
)

type SubRepository struct {
	pool *pgxpool.Pool
}

const defaultListLimit = 50

const subColumns = `subscriber, spender, start_time, weekly_amount, periods_paid, updated_at`

func NewSubRepository(pool *pgxpool.Pool) *SubRepository {
	return &SubRepository{pool: pool}
}

func (r *SubRepository) SaveSub(ctx context.Context, sub *entity.Subscription) error {
	if sub == nil {
		return fmt.Errorf("save sub: %w", usecase.ErrInvalidParameters)
	}
	q, _ := conn(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO subscriptions (subscriber, spender, start_time, weekly_amount, periods_paid, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subscriber, spender) DO UPDATE
		SET start_time    = EXCLUDED.start_time,
		    weekly_amount = EXCLUDED.weekly_amount,
		    periods_paid  = EXCLUDED.periods_paid,
		    updated_at    = EXCLUDED.updated_at`,
		string(sub.Subscriber), string(sub.Spender), sub.StartTime.UTC(), sub.WeeklyAmount, sub.PeriodsPaid, sub.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save sub: %w", err)
	}
	return nil
}

func (r *SubRepository) GetSub(ctx context.Context, key entity.Key) (*entity.Subscription, error) {
	q, _ := conn(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE subscriber = $1 AND spender = $2`,
		string(key.Subscriber), string(key.Spender))
	return scanSub(row, key)
}

// GetSubForUpdate locks the row until the surrounding transaction ends; outside a transaction it is GetSub
func (r *SubRepository) GetSubForUpdate(ctx context.Context, key entity.Key) (*entity.Subscription, error) {
	q, inTx := conn(ctx, r.pool)
	if !inTx {
		return r.GetSub(ctx, key)
	}
	row := q.QueryRow(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE subscriber = $1 AND spender = $2 FOR UPDATE`,
		string(key.Subscriber), string(key.Spender))
	return scanSub(row, key)
}

func (r *SubRepository) UpdatePeriodsPaid(ctx context.Context, key entity.Key, periodsPaid int64, at time.Time) error {
	q, _ := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE subscriptions
		SET periods_paid = $3, updated_at = $4
		WHERE subscriber = $1 AND spender = $2 AND periods_paid <= $3`,
		string(key.Subscriber), string(key.Spender), periodsPaid, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update periods paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return usecase.ErrSubscriptionNotFound
	}
	return nil
}

func (r *SubRepository) ListSubsByFilter(ctx context.Context, f usecase.SubFilter) ([]*entity.Subscription, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	subscriber, spender, party := optional(f.Subscriber), optional(f.Spender), optional(f.Party)

	q, _ := conn(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+subColumns+`
		FROM subscriptions
		WHERE ($1::text IS NULL OR subscriber = $1)
		  AND ($2::text IS NULL OR spender = $2)
		  AND ($3::text IS NULL OR subscriber = $3 OR spender = $3)
		ORDER BY id
		LIMIT $4 OFFSET $5`,
		subscriber, spender, party, int32(limit), int32(offset),
	)
	if err != nil {
		return nil, fmt.Errorf("list subs by filter: %w", err)
	}
	defer rows.Close()

	out := make([]*entity.Subscription, 0, limit)
	for rows.Next() {
		sub, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list subs by filter: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subs by filter: %w", err)
	}
	return out, nil
}

// optional maps the zero account to SQL NULL
func optional(a entity.Account) *string {
	if a.IsZero() {
		return nil
	}
	v := string(a)
	return &v
}

func scanSub(row pgx.Row, key entity.Key) (*entity.Subscription, error) {
	sub, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, usecase.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get sub %s->%s: %w", key.Subscriber, key.Spender, err)
	}
	return sub, nil
}

func scanRow(row pgx.Row) (*entity.Subscription, error) {
	var (
		subscriber, spender string
		sub                 entity.Subscription
	)
	if err := row.Scan(&subscriber, &spender, &sub.StartTime, &sub.WeeklyAmount, &sub.PeriodsPaid, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Subscriber = entity.Account(subscriber)
	sub.Spender = entity.Account(spender)
	sub.StartTime = sub.StartTime.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}
