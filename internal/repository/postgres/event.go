package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"subs_engine/internal/entity"
	"subs_engine/internal/usecase"
)

// EventRepository is an outbox of notifications written in the same transaction as the change they describe
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Notify(ctx context.Context, e entity.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var start *time.Time
	if e.StartTime != nil {
		t := e.StartTime.UTC()
		start = &t
	}
	q, _ := conn(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO events (id, type, from_account, to_account, amount, start_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.Type), string(e.From), string(e.To), e.Amount, start, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("notify %s: %w", e.Type, err)
	}
	return nil
}

func (r *EventRepository) ListEvents(ctx context.Context, f usecase.EventFilter) ([]entity.Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	account := optional(f.Account)

	q, _ := conn(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT id, type, from_account, to_account, amount, start_time, created_at
		FROM events
		WHERE ($1::text IS NULL OR from_account = $1 OR to_account = $1)
		ORDER BY seq
		LIMIT $2 OFFSET $3`,
		account, int32(limit), int32(offset),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]entity.Event, 0, limit)
	for rows.Next() {
		var (
			e             entity.Event
			typ, from, to string
			start         *time.Time
		)
		if err := rows.Scan(&e.ID, &typ, &from, &to, &e.Amount, &start, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		e.Type = entity.EventType(typ)
		e.From = entity.Account(from)
		e.To = entity.Account(to)
		e.CreatedAt = e.CreatedAt.UTC()
		if start != nil {
			t := start.UTC()
			e.StartTime = &t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}
