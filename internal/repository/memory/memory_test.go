package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"subs_engine/internal/entity"
	"subs_engine/internal/usecase"
)

var start = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

func newSub(subscriber, spender entity.Account, amount int64) *entity.Subscription {
	return &entity.Subscription{
		Subscriber:   subscriber,
		Spender:      spender,
		StartTime:    start,
		WeeklyAmount: amount,
		UpdatedAt:    start,
	}
}

func TestStore_SaveGetReplace(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := entity.Key{Subscriber: "0x01", Spender: "0x02"}

	_, err := s.GetSub(ctx, key)
	assert.ErrorIs(t, err, usecase.ErrSubscriptionNotFound)

	require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x02", 10)))
	require.NoError(t, s.UpdatePeriodsPaid(ctx, key, 3, start.Add(time.Hour)))

	got, err := s.GetSubForUpdate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.PeriodsPaid)

	got.PeriodsPaid = 99
	again, err := s.GetSub(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.PeriodsPaid, "returned records are copies")

	require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x02", 20)))
	replaced, err := s.GetSub(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(20), replaced.WeeklyAmount)
	assert.Zero(t, replaced.PeriodsPaid)
	assert.Len(t, s.subs, 1, "replace reuses the slot")

	err = s.UpdatePeriodsPaid(ctx, key, -1, start)
	assert.ErrorIs(t, err, usecase.ErrInvalidParameters)
	err = s.UpdatePeriodsPaid(ctx, entity.Key{Subscriber: "0x09", Spender: "0x02"}, 1, start)
	assert.ErrorIs(t, err, usecase.ErrSubscriptionNotFound)
}

func TestStore_Ledger(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	bal, err := s.BalanceOf(ctx, "0x01")
	require.NoError(t, err)
	assert.Zero(t, bal)

	require.NoError(t, s.Deposit(ctx, "0x01", 100))
	assert.ErrorIs(t, s.Transfer(ctx, "0x01", "0x02", 101), usecase.ErrInsufficientBalance)
	assert.ErrorIs(t, s.Transfer(ctx, "0x01", "0x02", 0), usecase.ErrInvalidParameters)
	assert.ErrorIs(t, s.Deposit(ctx, "0x01", -1), usecase.ErrInvalidParameters)
	require.NoError(t, s.Transfer(ctx, "0x01", "0x02", 60))

	from, _ := s.BalanceOf(ctx, "0x01")
	to, _ := s.BalanceOf(ctx, "0x02")
	assert.Equal(t, int64(40), from)
	assert.Equal(t, int64(60), to)
}

func TestStore_WithinTxRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Deposit(ctx, "0x01", 100))
	require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x02", 10)))
	key := entity.Key{Subscriber: "0x01", Spender: "0x02"}

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Transfer(ctx, "0x01", "0x02", 30))
		require.NoError(t, s.UpdatePeriodsPaid(ctx, key, 3, start))
		require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x03", 5)))
		require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x02", 7)))
		require.NoError(t, s.Notify(ctx, entity.NewPaymentTransferred("0x01", "0x02", 30, start)))

		return s.WithinTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Deposit(ctx, "0x04", 1))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	from, _ := s.BalanceOf(ctx, "0x01")
	to, _ := s.BalanceOf(ctx, "0x02")
	other, _ := s.BalanceOf(ctx, "0x04")
	assert.Equal(t, int64(100), from)
	assert.Zero(t, to)
	assert.Zero(t, other)

	sub, err := s.GetSub(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sub.WeeklyAmount)
	assert.Zero(t, sub.PeriodsPaid)

	_, err = s.GetSub(ctx, entity.Key{Subscriber: "0x01", Spender: "0x03"})
	assert.ErrorIs(t, err, usecase.ErrSubscriptionNotFound)

	events, err := s.ListEvents(ctx, usecase.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_WithinTxPanicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Deposit(ctx, "0x01", 100))
	require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x02", 10)))
	key := entity.Key{Subscriber: "0x01", Spender: "0x02"}

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.WithinTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Transfer(ctx, "0x01", "0x02", 30))
			require.NoError(t, s.UpdatePeriodsPaid(ctx, key, 3, start))
			panic("boom")
		})
	})

	from, err := s.BalanceOf(ctx, "0x01")
	require.NoError(t, err)
	to, err := s.BalanceOf(ctx, "0x02")
	require.NoError(t, err)
	assert.Equal(t, int64(100), from)
	assert.Zero(t, to)

	sub, err := s.GetSub(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, sub.PeriodsPaid)
}

func TestStore_BalanceOverflow(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Deposit(ctx, "0x01", math.MaxInt64))
	require.NoError(t, s.Deposit(ctx, "0x02", 10))

	assert.ErrorIs(t, s.Deposit(ctx, "0x01", 1), usecase.ErrInvalidParameters)
	assert.ErrorIs(t, s.Transfer(ctx, "0x02", "0x01", 5), usecase.ErrInvalidParameters)

	full, _ := s.BalanceOf(ctx, "0x01")
	rest, _ := s.BalanceOf(ctx, "0x02")
	assert.Equal(t, int64(math.MaxInt64), full)
	assert.Equal(t, int64(10), rest)
}

func TestStore_WithinTxCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Deposit(ctx, "0x01", 100))

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		return s.Transfer(ctx, "0x01", "0x02", 40)
	})
	require.NoError(t, err)

	to, _ := s.BalanceOf(ctx, "0x02")
	assert.Equal(t, int64(40), to)
}

func TestStore_Lists(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x09", 1)))
	require.NoError(t, s.SaveSub(ctx, newSub("0x02", "0x09", 2)))
	require.NoError(t, s.SaveSub(ctx, newSub("0x03", "0x08", 3)))
	require.NoError(t, s.SaveSub(ctx, newSub("0x01", "0x08", 4)))

	bySpender, err := s.ListSubsByFilter(ctx, usecase.SubFilter{Spender: "0x09"})
	require.NoError(t, err)
	require.Len(t, bySpender, 2)
	assert.Equal(t, entity.Account("0x01"), bySpender[0].Subscriber)
	assert.Equal(t, entity.Account("0x02"), bySpender[1].Subscriber)

	page, err := s.ListSubsByFilter(ctx, usecase.SubFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].WeeklyAmount)
	assert.Equal(t, int64(3), page[1].WeeklyAmount)

	bySubscriber, err := s.ListSubsByFilter(ctx, usecase.SubFilter{Subscriber: "0x01"})
	require.NoError(t, err)
	assert.Len(t, bySubscriber, 2)

	byParty, err := s.ListSubsByFilter(ctx, usecase.SubFilter{Party: "0x08"})
	require.NoError(t, err)
	require.Len(t, byParty, 2)
	assert.Equal(t, int64(3), byParty[0].WeeklyAmount)
	assert.Equal(t, int64(4), byParty[1].WeeklyAmount)

	stranger, err := s.ListSubsByFilter(ctx, usecase.SubFilter{Party: "0x07"})
	require.NoError(t, err)
	assert.Empty(t, stranger)

	require.NoError(t, s.Notify(ctx, entity.NewPaymentTransferred("0x01", "0x09", 1, start)))
	require.NoError(t, s.Notify(ctx, entity.NewPaymentTransferred("0x02", "0x09", 2, start)))
	require.NoError(t, s.Notify(ctx, entity.NewPaymentTransferred("0x03", "0x08", 3, start)))

	events, err := s.ListEvents(ctx, usecase.EventFilter{Account: "0x09"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Amount)

	events, err = s.ListEvents(ctx, usecase.EventFilter{Account: "0x03", Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.Account("0x08"), events[0].To)
}
