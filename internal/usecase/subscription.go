package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"subs_engine/internal/entity"
)

// Subscription coordinates subscription use cases over the repository and the ledger
type Subscription struct {
	Sr     SubscriptionRepository
	Ledger Ledger
	Events EventRepository
	Tx     Transactor

	now      func() time.Time
	log      *slog.Logger
	maxBatch int
}

// Option configures a Subscription use case
type Option func(*Subscription)

// WithClock overrides the source of "now"
func WithClock(now func() time.Time) Option {
	return func(s *Subscription) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the use case logger
func WithLogger(log *slog.Logger) Option {
	return func(s *Subscription) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMaxBatch limits the number of pairs accepted by one batch withdrawal
func WithMaxBatch(n int) Option {
	return func(s *Subscription) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// NewSubscription creates a use case service with the given collaborators
func NewSubscription(sr SubscriptionRepository, ledger Ledger, events EventRepository, tx Transactor, opts ...Option) *Subscription {
	s := &Subscription{
		Sr:       sr,
		Ledger:   ledger,
		Events:   events,
		Tx:       tx,
		now:      time.Now,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBatch: defaultMaxBatch,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe creates or replaces the subscription of subscriber to spender.
// A replaced record starts over with zero paid periods.
func (s *Subscription) Subscribe(ctx context.Context, subscriber entity.Account, startTime time.Time, weeklyAmount int64, spender entity.Account) (*entity.Subscription, error) {
	subscriber = subscriber.Normalize()
	spender = spender.Normalize()
	switch {
	case weeklyAmount <= 0:
		return nil, fmt.Errorf("%w: weekly amount must be > 0", ErrInvalidParameters)
	case subscriber.IsZero():
		return nil, fmt.Errorf("%w: empty subscriber", ErrInvalidParameters)
	case spender.IsZero():
		return nil, fmt.Errorf("%w: empty spender", ErrInvalidParameters)
	case spender == subscriber:
		return nil, fmt.Errorf("%w: spender equals subscriber", ErrInvalidParameters)
	}

	now := s.now()
	sub := &entity.Subscription{
		Subscriber:   subscriber,
		Spender:      spender,
		StartTime:    time.Unix(startTime.Unix(), 0).UTC(),
		WeeklyAmount: weeklyAmount,
		PeriodsPaid:  0,
		UpdatedAt:    now,
	}

	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Sr.SaveSub(ctx, sub); err != nil {
			return err
		}
		return s.Events.Notify(ctx, entity.NewSubscriptionCreated(sub, now))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		slog.String("subscriber", subscriber.String()),
		slog.String("spender", spender.String()),
		slog.Int64("weekly_amount", weeklyAmount),
		slog.Time("start_time", sub.StartTime),
	)
	return sub, nil
}

// Lookup fetches the subscription of subscriber to spender
func (s *Subscription) Lookup(ctx context.Context, subscriber, spender entity.Account) (*entity.Subscription, error) {
	key := entity.Key{Subscriber: subscriber.Normalize(), Spender: spender.Normalize()}
	if key.Subscriber.IsZero() || key.Spender.IsZero() {
		return nil, fmt.Errorf("%w: empty account", ErrInvalidParameters)
	}
	return s.Sr.GetSub(ctx, key)
}

// Preview returns the subscription together with what it owes right now
func (s *Subscription) Preview(ctx context.Context, subscriber, spender entity.Account) (*entity.Subscription, entity.Accrual, error) {
	sub, err := s.Lookup(ctx, subscriber, spender)
	if err != nil {
		return nil, entity.Accrual{}, err
	}
	return sub, Accrue(sub, s.now()), nil
}

// SubWithdraw pulls everything owed by subscriber to the calling spender
func (s *Subscription) SubWithdraw(ctx context.Context, spender, subscriber entity.Account) (int64, error) {
	key := entity.Key{Subscriber: subscriber.Normalize(), Spender: spender.Normalize()}
	if key.Spender.IsZero() {
		return 0, fmt.Errorf("%w: empty caller", ErrInvalidParameters)
	}

	var amount int64
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		amount, err = s.withdraw(ctx, key, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("withdrawal committed",
		slog.String("subscriber", key.Subscriber.String()),
		slog.String("spender", key.Spender.String()),
		slog.Int64("amount", amount),
	)
	return amount, nil
}

// MultiSubWithdraw pulls from every subscriber of the calling spender, in order.
// Pairs that yield nothing are skipped.
func (s *Subscription) MultiSubWithdraw(ctx context.Context, spender entity.Account, subscribers []entity.Account) (int, error) {
	spender = spender.Normalize()
	if spender.IsZero() {
		return 0, fmt.Errorf("%w: empty caller", ErrInvalidParameters)
	}
	keys := make([]entity.Key, len(subscribers))
	for i, sub := range subscribers {
		keys[i] = entity.Key{Subscriber: sub.Normalize(), Spender: spender}
	}
	return s.withdrawBatch(ctx, keys)
}

// MultiSubWithdrawFor relays withdrawals for arbitrary (subscribers[i], spenders[i]) pairs
// and returns how many of them produced a transfer.
func (s *Subscription) MultiSubWithdrawFor(ctx context.Context, subscribers, spenders []entity.Account) (int, error) {
	if len(subscribers) != len(spenders) {
		return 0, fmt.Errorf("%w: %d subscribers for %d spenders", ErrInvalidParameters, len(subscribers), len(spenders))
	}
	keys := make([]entity.Key, len(subscribers))
	for i := range subscribers {
		keys[i] = entity.Key{Subscriber: subscribers[i].Normalize(), Spender: spenders[i].Normalize()}
	}
	return s.withdrawBatch(ctx, keys)
}

// ListSubsByFilter normalizes the filter and returns matching subscriptions
func (s *Subscription) ListSubsByFilter(ctx context.Context, filter SubFilter) ([]*entity.Subscription, error) {
	limit, offset, err := normalizePage(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	filter.Subscriber = filter.Subscriber.Normalize()
	filter.Spender = filter.Spender.Normalize()
	filter.Party = filter.Party.Normalize()
	filter.Limit, filter.Offset = limit, offset
	return s.Sr.ListSubsByFilter(ctx, filter)
}

// ListEvents normalizes the filter and returns recorded notifications
func (s *Subscription) ListEvents(ctx context.Context, filter EventFilter) ([]entity.Event, error) {
	limit, offset, err := normalizePage(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	filter.Account = filter.Account.Normalize()
	filter.Limit, filter.Offset = limit, offset
	return s.Events.ListEvents(ctx, filter)
}

func (s *Subscription) withdrawBatch(ctx context.Context, keys []entity.Key) (int, error) {
	if len(keys) > s.maxBatch {
		return 0, fmt.Errorf("%w: batch of %d exceeds %d", ErrInvalidParameters, len(keys), s.maxBatch)
	}

	var count int
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		count = 0
		now := s.now()
		for i, key := range keys {
			amount, err := s.withdraw(ctx, key, now)
			switch {
			case errors.Is(err, ErrSubscriptionNotFound):
				s.log.Debug("batch entry skipped",
					slog.Int("index", i),
					slog.String("subscriber", key.Subscriber.String()),
					slog.String("spender", key.Spender.String()),
					slog.String("reason", "no subscription"),
				)
				continue
			case err != nil:
				return fmt.Errorf("batch entry %d: %w", i, err)
			case amount == 0:
				s.log.Debug("batch entry skipped",
					slog.Int("index", i),
					slog.String("subscriber", key.Subscriber.String()),
					slog.String("spender", key.Spender.String()),
					slog.String("reason", "nothing payable"),
				)
				continue
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("batch withdrawal committed", slog.Int("pairs", len(keys)), slog.Int("transfers", count))
	return count, nil
}

// withdraw settles one pair inside the caller's unit of work
func (s *Subscription) withdraw(ctx context.Context, key entity.Key, now time.Time) (int64, error) {
	if key.Subscriber.IsZero() || key.Spender.IsZero() {
		return 0, ErrSubscriptionNotFound
	}
	sub, err := s.Sr.GetSubForUpdate(ctx, key)
	if err != nil {
		return 0, err
	}

	acc := Accrue(sub, now)
	if acc.Owed == 0 {
		return 0, nil
	}

	available, err := s.Ledger.BalanceOf(ctx, key.Subscriber)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", key.Subscriber, err)
	}
	periods, amount := Settle(sub.WeeklyAmount, acc, available)
	if amount == 0 {
		return 0, nil
	}

	if err := s.Ledger.Transfer(ctx, key.Subscriber, key.Spender, amount); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if err := s.Sr.UpdatePeriodsPaid(ctx, key, sub.PeriodsPaid+periods, now); err != nil {
		return 0, err
	}
	if err := s.Events.Notify(ctx, entity.NewPaymentTransferred(key.Subscriber, key.Spender, amount, now)); err != nil {
		return 0, err
	}

	s.log.Debug("subscription withdrawn",
		slog.String("subscriber", key.Subscriber.String()),
		slog.String("spender", key.Spender.String()),
		slog.Int64("amount", amount),
		slog.Int64("periods", periods),
		slog.Int64("due_periods", acc.DuePeriods),
	)
	return amount, nil
}

// RequireParty fails with ErrForbidden unless caller is one of accounts
func RequireParty(caller entity.Account, accounts ...entity.Account) error {
	caller = caller.Normalize()
	if caller.IsZero() {
		return fmt.Errorf("%w: empty caller", ErrForbidden)
	}
	for _, a := range accounts {
		if a.Normalize() == caller {
			return nil
		}
	}
	return ErrForbidden
}

// normalizePage validates pagination and applies the default and maximum limits
func normalizePage(limit, offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must be >= 0", ErrInvalidPagination)
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return limit, offset, nil
}
