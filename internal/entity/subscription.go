package entity

import "time"

// SecondsPerWeek - length of one accrual period
const SecondsPerWeek int64 = 7 * 24 * 60 * 60

// Subscription - recurring weekly payment authorized by Subscriber to Spender
type Subscription struct {
	// Subscriber - account whose balance funds the payments
	Subscriber Account
	// Spender - the only account allowed to pull funds under this subscription
	Spender Account
	// StartTime - boundary of period 0, may be in the future
	StartTime time.Time
	// WeeklyAmount - amount owed per whole week elapsed since StartTime
	WeeklyAmount int64
	// PeriodsPaid - number of weekly periods already settled
	PeriodsPaid int64
	// UpdatedAt - time of the last create/replace or settlement
	UpdatedAt time.Time
}

// Key - composite identity of a subscription
type Key struct {
	Subscriber Account
	Spender    Account
}

// Key returns the (subscriber, spender) pair of s
func (s *Subscription) Key() Key {
	return Key{Subscriber: s.Subscriber, Spender: s.Spender}
}

// Accrual - periods and amount owed but not yet paid as of a moment
type Accrual struct {
	DuePeriods int64
	Owed       int64
}
