package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"subs_engine/internal/entity"
	"subs_engine/internal/usecase"
)

type txKey struct{}

// journal collects undo steps of the running unit of work
type journal struct {
	undo []func()
}

func (j *journal) record(f func()) {
	j.undo = append(j.undo, f)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// Store is an in-memory subscription registry, ledger and event log.
// Subscriptions live in a dense slice indexed by their (subscriber, spender) key.
// A unit of work holds the store lock for its whole duration, so calls are applied one at a time.
type Store struct {
	mu       sync.Mutex
	subs     []entity.Subscription
	index    map[entity.Key]int
	balances map[entity.Account]int64
	events   []entity.Event
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		index:    make(map[entity.Key]int),
		balances: make(map[entity.Account]int64),
	}
}

// WithinTx runs fn while holding the store lock and undoes every change fn made if it fails.
// Nested calls join the outer unit of work.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &journal{}
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

// lock acquires the store lock unless ctx already runs inside WithinTx.
// The returned func releases it and must always be called.
func (s *Store) lock(ctx context.Context) (*journal, func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		return j, func() {}
	}
	s.mu.Lock()
	return nil, s.mu.Unlock
}

func (s *Store) SaveSub(ctx context.Context, sub *entity.Subscription) error {
	if sub == nil {
		return fmt.Errorf("save sub: %w", usecase.ErrInvalidParameters)
	}
	j, unlock := s.lock(ctx)
	defer unlock()

	key := sub.Key()
	if slot, ok := s.index[key]; ok {
		prev := s.subs[slot]
		s.subs[slot] = *sub
		if j != nil {
			j.record(func() { s.subs[slot] = prev })
		}
		return nil
	}

	s.subs = append(s.subs, *sub)
	s.index[key] = len(s.subs) - 1
	if j != nil {
		j.record(func() {
			delete(s.index, key)
			s.subs = s.subs[:len(s.subs)-1]
		})
	}
	return nil
}

func (s *Store) GetSub(ctx context.Context, key entity.Key) (*entity.Subscription, error) {
	_, unlock := s.lock(ctx)
	defer unlock()

	slot, ok := s.index[key]
	if !ok {
		return nil, usecase.ErrSubscriptionNotFound
	}
	out := s.subs[slot]
	return &out, nil
}

// GetSubForUpdate is GetSub; the store lock already serializes units of work
func (s *Store) GetSubForUpdate(ctx context.Context, key entity.Key) (*entity.Subscription, error) {
	return s.GetSub(ctx, key)
}

func (s *Store) UpdatePeriodsPaid(ctx context.Context, key entity.Key, periodsPaid int64, at time.Time) error {
	j, unlock := s.lock(ctx)
	defer unlock()

	slot, ok := s.index[key]
	if !ok {
		return usecase.ErrSubscriptionNotFound
	}
	prev := s.subs[slot]
	if periodsPaid < prev.PeriodsPaid {
		return fmt.Errorf("update periods paid: %d < %d: %w", periodsPaid, prev.PeriodsPaid, usecase.ErrInvalidParameters)
	}
	s.subs[slot].PeriodsPaid = periodsPaid
	s.subs[slot].UpdatedAt = at
	if j != nil {
		j.record(func() { s.subs[slot] = prev })
	}
	return nil
}

func (s *Store) ListSubsByFilter(ctx context.Context, f usecase.SubFilter) ([]*entity.Subscription, error) {
	_, unlock := s.lock(ctx)
	defer unlock()

	out := make([]*entity.Subscription, 0)
	skipped := 0
	for i := range s.subs {
		sub := s.subs[i]
		if f.Subscriber != "" && sub.Subscriber != f.Subscriber {
			continue
		}
		if f.Spender != "" && sub.Spender != f.Spender {
			continue
		}
		if f.Party != "" && sub.Subscriber != f.Party && sub.Spender != f.Party {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		out = append(out, &sub)
	}
	return out, nil
}

// BalanceOf returns the balance of account, zero when it was never credited
func (s *Store) BalanceOf(ctx context.Context, account entity.Account) (int64, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	return s.balances[account], nil
}

func (s *Store) Transfer(ctx context.Context, from, to entity.Account, amount int64) error {
	if amount <= 0 || from == to {
		return fmt.Errorf("transfer %d from %s to %s: %w", amount, from, to, usecase.ErrInvalidParameters)
	}
	j, unlock := s.lock(ctx)
	defer unlock()

	fromBal, toBal := s.balances[from], s.balances[to]
	if fromBal < amount {
		return usecase.ErrInsufficientBalance
	}
	if toBal > math.MaxInt64-amount {
		return fmt.Errorf("transfer %d to %s: balance overflow: %w", amount, to, usecase.ErrInvalidParameters)
	}
	s.balances[from] = fromBal - amount
	s.balances[to] = toBal + amount
	if j != nil {
		j.record(func() {
			s.balances[from] = fromBal
			s.balances[to] = toBal
		})
	}
	return nil
}

// Deposit credits account out of band; it stands in for the external token supply
func (s *Store) Deposit(ctx context.Context, account entity.Account, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit %d: %w", amount, usecase.ErrInvalidParameters)
	}
	j, unlock := s.lock(ctx)
	defer unlock()

	prev := s.balances[account]
	if prev > math.MaxInt64-amount {
		return fmt.Errorf("deposit %d to %s: balance overflow: %w", amount, account, usecase.ErrInvalidParameters)
	}
	s.balances[account] = prev + amount
	if j != nil {
		j.record(func() { s.balances[account] = prev })
	}
	return nil
}

func (s *Store) Notify(ctx context.Context, e entity.Event) error {
	j, unlock := s.lock(ctx)
	defer unlock()

	s.events = append(s.events, e)
	if j != nil {
		j.record(func() { s.events = s.events[:len(s.events)-1] })
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, f usecase.EventFilter) ([]entity.Event, error) {
	_, unlock := s.lock(ctx)
	defer unlock()

	out := make([]entity.Event, 0)
	skipped := 0
	for _, e := range s.events {
		if f.Account != "" && e.From != f.Account && e.To != f.Account {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}
