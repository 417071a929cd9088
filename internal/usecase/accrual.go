package usecase

import (
	"math"
	"time"

	"subs_engine/internal/entity"
)

// ElapsedPeriods returns the number of whole weeks between start and now, zero before start
func ElapsedPeriods(start, now time.Time) int64 {
	d := now.Unix() - start.Unix()
	if d <= 0 {
		return 0
	}
	return d / entity.SecondsPerWeek
}

// Accrue computes what sub owes as of now. It never mutates sub.
// Due periods are clamped so that the owed amount fits in int64.
func Accrue(sub *entity.Subscription, now time.Time) entity.Accrual {
	if sub == nil || sub.WeeklyAmount <= 0 {
		return entity.Accrual{}
	}
	due := ElapsedPeriods(sub.StartTime, now) - sub.PeriodsPaid
	if due <= 0 {
		return entity.Accrual{}
	}
	if limit := math.MaxInt64 / sub.WeeklyAmount; due > limit {
		due = limit
	}
	return entity.Accrual{DuePeriods: due, Owed: due * sub.WeeklyAmount}
}

// Settle caps an accrual by the available balance and returns the periods
// that can be marked paid together with the amount to transfer.
// Only whole periods are ever paid.
func Settle(weeklyAmount int64, acc entity.Accrual, available int64) (periods, amount int64) {
	if acc.Owed <= 0 || available <= 0 || weeklyAmount <= 0 {
		return 0, 0
	}
	if available >= acc.Owed {
		return acc.DuePeriods, acc.Owed
	}
	periods = available / weeklyAmount
	return periods, periods * weeklyAmount
}
