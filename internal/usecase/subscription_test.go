package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"subs_engine/internal/entity"
)

type mocks struct {
	repo   *MockSubscriptionRepository
	ledger *MockLedger
	events *MockEventRepository
	tx     *MockTransactor
}

func newMocks(ctrl *gomock.Controller) mocks {
	m := mocks{
		repo:   NewMockSubscriptionRepository(ctrl),
		ledger: NewMockLedger(ctrl),
		events: NewMockEventRepository(ctrl),
		tx:     NewMockTransactor(ctrl),
	}
	m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}).AnyTimes()
	return m
}

func (m mocks) useCase(now time.Time) *Subscription {
	return NewSubscription(m.repo, m.ledger, m.events, m.tx, WithClock(func() time.Time { return now }), WithMaxBatch(3))
}

var (
	start = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	alice = entity.Account("0xa11ce")
	bob   = entity.Account("0xb0b")
	carol = entity.Account("0xca201")
)

func Test_subscription_Subscribe(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("err, invalid parameters", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m := newMocks(ctrl)
		m.repo.EXPECT().SaveSub(gomock.Any(), gomock.Any()).Times(0)
		m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)
		uc := m.useCase(start)

		tcases := []struct {
			Name       string
			Subscriber entity.Account
			Amount     int64
			Spender    entity.Account
		}{
			{"zero amount", alice, 0, bob},
			{"negative amount", alice, -5, bob},
			{"empty spender", alice, 10, ""},
			{"zero address spender", alice, 10, "0x0000000000000000000000000000000000000000"},
			{"empty subscriber", "", 10, bob},
			{"self subscription", alice, 10, "0xA11CE"},
		}
		for _, tc := range tcases {
			_, err := uc.Subscribe(ctx, tc.Subscriber, start, tc.Amount, tc.Spender)
			assert.ErrorIs(t, err, ErrInvalidParameters, tc.Name)
		}
	})

	t.Run("err, repo returns error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m := newMocks(ctrl)
		expected := errors.New("save error")
		m.repo.EXPECT().SaveSub(gomock.Any(), gomock.Any()).Times(1).Return(expected)
		m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)

		_, err := m.useCase(start).Subscribe(ctx, alice, start, 10, bob)
		assert.ErrorIs(t, err, expected)
	})

	t.Run("ok, fresh record and notification", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m := newMocks(ctrl)
		future := start.Add(3*week + 500*time.Millisecond)
		gomock.InOrder(
			m.repo.EXPECT().SaveSub(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, s *entity.Subscription) error {
					assert.Equal(t, alice, s.Subscriber)
					assert.Equal(t, bob, s.Spender)
					assert.Equal(t, int64(0), s.PeriodsPaid)
					assert.Equal(t, future.Truncate(time.Second), s.StartTime)
					return nil
				}).Times(1),
			m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, e entity.Event) error {
					assert.Equal(t, entity.EventSubscriptionCreated, e.Type)
					assert.Equal(t, alice, e.From)
					assert.Equal(t, bob, e.To)
					assert.Equal(t, int64(10), e.Amount)
					require.NotNil(t, e.StartTime)
					return nil
				}).Times(1),
		)

		got, err := m.useCase(start).Subscribe(ctx, "0xA11CE", future, 10, " 0xB0B ")
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.WeeklyAmount)
	})
}

func Test_subscription_SubWithdraw(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	key := entity.Key{Subscriber: alice, Spender: bob}

	t.Run("err, no subscription", func(t *testing.T) {
		ctx := context.Background()
		m := newMocks(ctrl)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), key).Return(nil, ErrSubscriptionNotFound)
		m.ledger.EXPECT().BalanceOf(gomock.Any(), gomock.Any()).Times(0)

		_, err := m.useCase(start).SubWithdraw(ctx, bob, alice)
		assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	})

	t.Run("err, empty caller", func(t *testing.T) {
		m := newMocks(ctrl)
		_, err := m.useCase(start).SubWithdraw(context.Background(), "", alice)
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})

	t.Run("ok, nothing owed means no ledger interaction", func(t *testing.T) {
		m := newMocks(ctrl)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), key).
			Return(&entity.Subscription{Subscriber: alice, Spender: bob, StartTime: start, WeeklyAmount: 10}, nil)
		m.ledger.EXPECT().BalanceOf(gomock.Any(), gomock.Any()).Times(0)
		m.repo.EXPECT().UpdatePeriodsPaid(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		got, err := m.useCase(start.Add(week-time.Second)).SubWithdraw(context.Background(), bob, alice)
		require.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("ok, empty balance leaves debt outstanding", func(t *testing.T) {
		m := newMocks(ctrl)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), key).
			Return(&entity.Subscription{Subscriber: alice, Spender: bob, StartTime: start, WeeklyAmount: 10}, nil)
		m.ledger.EXPECT().BalanceOf(gomock.Any(), alice).Return(int64(0), nil)
		m.ledger.EXPECT().Transfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		m.repo.EXPECT().UpdatePeriodsPaid(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)

		got, err := m.useCase(start.Add(2*week)).SubWithdraw(context.Background(), bob, alice)
		require.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("ok, partial cover pays whole periods only", func(t *testing.T) {
		now := start.Add(3 * week)
		m := newMocks(ctrl)
		gomock.InOrder(
			m.repo.EXPECT().GetSubForUpdate(gomock.Any(), key).
				Return(&entity.Subscription{Subscriber: alice, Spender: bob, StartTime: start, WeeklyAmount: 10, PeriodsPaid: 0}, nil),
			m.ledger.EXPECT().BalanceOf(gomock.Any(), alice).Return(int64(25), nil),
			m.ledger.EXPECT().Transfer(gomock.Any(), alice, bob, int64(20)).Return(nil),
			m.repo.EXPECT().UpdatePeriodsPaid(gomock.Any(), key, int64(2), now).Return(nil),
			m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, e entity.Event) error {
					assert.Equal(t, entity.EventPaymentTransferred, e.Type)
					assert.Equal(t, int64(20), e.Amount)
					return nil
				}),
		)

		got, err := m.useCase(now).SubWithdraw(context.Background(), bob, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(20), got)
	})

	t.Run("ok, full cover settles every due period", func(t *testing.T) {
		now := start.Add(5 * week)
		m := newMocks(ctrl)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), key).
			Return(&entity.Subscription{Subscriber: alice, Spender: bob, StartTime: start, WeeklyAmount: 10, PeriodsPaid: 2}, nil)
		m.ledger.EXPECT().BalanceOf(gomock.Any(), alice).Return(int64(1000), nil)
		m.ledger.EXPECT().Transfer(gomock.Any(), alice, bob, int64(30)).Return(nil)
		m.repo.EXPECT().UpdatePeriodsPaid(gomock.Any(), key, int64(5), now).Return(nil)
		m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

		got, err := m.useCase(now).SubWithdraw(context.Background(), bob, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(30), got)
	})

	t.Run("err, ledger refuses transfer", func(t *testing.T) {
		m := newMocks(ctrl)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), key).
			Return(&entity.Subscription{Subscriber: alice, Spender: bob, StartTime: start, WeeklyAmount: 10}, nil)
		m.ledger.EXPECT().BalanceOf(gomock.Any(), alice).Return(int64(10), nil)
		m.ledger.EXPECT().Transfer(gomock.Any(), alice, bob, int64(10)).Return(ErrInsufficientBalance)
		m.repo.EXPECT().UpdatePeriodsPaid(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)

		_, err := m.useCase(start.Add(week)).SubWithdraw(context.Background(), bob, alice)
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func Test_subscription_MultiSubWithdrawFor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := start.Add(week)

	t.Run("err, length mismatch", func(t *testing.T) {
		m := newMocks(ctrl)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), gomock.Any()).Times(0)

		_, err := m.useCase(now).MultiSubWithdrawFor(context.Background(), []entity.Account{alice, carol}, []entity.Account{bob})
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})

	t.Run("err, batch too large", func(t *testing.T) {
		m := newMocks(ctrl)
		subs := []entity.Account{alice, alice, alice, alice}
		spenders := []entity.Account{bob, bob, bob, bob}

		_, err := m.useCase(now).MultiSubWithdrawFor(context.Background(), subs, spenders)
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})

	t.Run("ok, missing pairs are skipped", func(t *testing.T) {
		m := newMocks(ctrl)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), entity.Key{Subscriber: alice, Spender: bob}).
			Return(nil, ErrSubscriptionNotFound)
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), entity.Key{Subscriber: carol, Spender: bob}).
			Return(&entity.Subscription{Subscriber: carol, Spender: bob, StartTime: start, WeeklyAmount: 7}, nil)
		m.ledger.EXPECT().BalanceOf(gomock.Any(), carol).Return(int64(100), nil)
		m.ledger.EXPECT().Transfer(gomock.Any(), carol, bob, int64(7)).Return(nil)
		m.repo.EXPECT().UpdatePeriodsPaid(gomock.Any(), entity.Key{Subscriber: carol, Spender: bob}, int64(1), now).Return(nil)
		m.events.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

		n, err := m.useCase(now).MultiSubWithdrawFor(context.Background(), []entity.Account{alice, carol}, []entity.Account{bob, bob})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("err, storage failure aborts the batch", func(t *testing.T) {
		m := newMocks(ctrl)
		expected := errors.New("conn reset")
		m.repo.EXPECT().GetSubForUpdate(gomock.Any(), gomock.Any()).Return(nil, expected)

		_, err := m.useCase(now).MultiSubWithdrawFor(context.Background(), []entity.Account{alice}, []entity.Account{bob})
		assert.ErrorIs(t, err, expected)
	})

	t.Run("ok, empty batch", func(t *testing.T) {
		m := newMocks(ctrl)
		n, err := m.useCase(now).MultiSubWithdrawFor(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func Test_subscription_ListSubsByFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("err, negative offset", func(t *testing.T) {
		m := newMocks(ctrl)
		m.repo.EXPECT().ListSubsByFilter(gomock.Any(), gomock.Any()).Times(0)

		_, err := m.useCase(start).ListSubsByFilter(context.Background(), SubFilter{Offset: -1})
		assert.ErrorIs(t, err, ErrInvalidPagination)
	})

	t.Run("ok, limits normalized", func(t *testing.T) {
		m := newMocks(ctrl)
		m.repo.EXPECT().ListSubsByFilter(gomock.Any(), SubFilter{Spender: bob, Limit: maxListLimit}).Return(nil, nil)
		m.events.EXPECT().ListEvents(gomock.Any(), EventFilter{Account: alice, Limit: defaultListLimit}).Return(nil, nil)

		uc := m.useCase(start)
		_, err := uc.ListSubsByFilter(context.Background(), SubFilter{Spender: "0xB0B", Limit: 10_000})
		require.NoError(t, err)
		_, err = uc.ListEvents(context.Background(), EventFilter{Account: alice})
		require.NoError(t, err)
	})
}

func TestRequireParty(t *testing.T) {
	tcases := []struct {
		Name     string
		Caller   entity.Account
		Accounts []entity.Account
		WantErr  bool
	}{
		{"subscriber", alice, []entity.Account{alice, bob}, false},
		{"spender in other case", "0xB0B", []entity.Account{alice, bob}, false},
		{"stranger", carol, []entity.Account{alice, bob}, true},
		{"empty caller", entity.ZeroAccount, []entity.Account{entity.ZeroAccount}, true},
		{"no accounts", alice, nil, true},
	}
	for _, tc := range tcases {
		t.Run(tc.Name, func(t *testing.T) {
			err := RequireParty(tc.Caller, tc.Accounts...)
			if tc.WantErr {
				assert.ErrorIs(t, err, ErrForbidden)
				return
			}
			assert.NoError(t, err)
		})
	}
}
