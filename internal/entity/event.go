package entity

import (
	"time"

	"github.com/google/uuid"
)

// EventType - kind of observable notification
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventPaymentTransferred  EventType = "payment_transferred"
)

// Event - notification emitted by a committed operation.
// For SubscriptionCreated From is the subscriber and To the spender,
// StartTime and Amount (weekly) are set. For PaymentTransferred Amount is the
// realized transfer.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	From      Account
	To        Account
	Amount    int64
	StartTime *time.Time
	CreatedAt time.Time
}

// NewSubscriptionCreated builds the notification for a successful subscribe
func NewSubscriptionCreated(s *Subscription, at time.Time) Event {
	start := s.StartTime
	return Event{
		ID:        uuid.New(),
		Type:      EventSubscriptionCreated,
		From:      s.Subscriber,
		To:        s.Spender,
		Amount:    s.WeeklyAmount,
		StartTime: &start,
		CreatedAt: at,
	}
}

// NewPaymentTransferred builds the notification for a non-zero withdrawal
func NewPaymentTransferred(from, to Account, amount int64, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventPaymentTransferred,
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: at,
	}
}
