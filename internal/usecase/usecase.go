package usecase

import (
	"context"
	"errors"
	"time"

	"subs_engine/internal/entity"
)

//go:generate go run github.com/golang/mock/mockgen@v1.6.0 -destination=usecase_mock.go -package=usecase subs_engine/internal/usecase SubscriptionRepository,Ledger,EventRepository,Transactor

var (
	ErrInvalidParameters    = errors.New("invalid parameters")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrTransferFailed       = errors.New("transfer failed")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrForbidden            = errors.New("caller is not a party")
	ErrInvalidPagination    = errors.New("invalid pagination")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	defaultMaxBatch  = 500
)

// SubFilter - filter for subscription listings
type SubFilter struct {
	// Subscriber - only subscriptions funded by this account
	Subscriber entity.Account
	// Spender - only subscriptions payable to this account
	Spender entity.Account
	// Party - only subscriptions where this account is the subscriber or the spender
	Party entity.Account
	// Limit - maximum number of records in the response
	Limit int
	// Offset - result set offset
	Offset int
}

// EventFilter - filter for the notification log
type EventFilter struct {
	// Account - events where the account is either side
	Account entity.Account
	// Limit - maximum number of records in the response
	Limit int
	// Offset - result set offset
	Offset int
}

// SubscriptionRepository - storage of one subscription per (subscriber, spender)
type SubscriptionRepository interface {
	// SaveSub - create or replace the record for the pair of s
	SaveSub(ctx context.Context, s *entity.Subscription) error
	// GetSub - read a subscription, ErrSubscriptionNotFound when absent
	GetSub(ctx context.Context, key entity.Key) (*entity.Subscription, error)
	// GetSubForUpdate - read a subscription and lock it for the current unit of work
	GetSubForUpdate(ctx context.Context, key entity.Key) (*entity.Subscription, error)
	// UpdatePeriodsPaid - persist a new settled-period counter
	UpdatePeriodsPaid(ctx context.Context, key entity.Key, periodsPaid int64, at time.Time) error
	// ListSubsByFilter - list subscriptions using SubFilter
	ListSubsByFilter(ctx context.Context, f SubFilter) ([]*entity.Subscription, error)
}

// Ledger - the token ledger the engine draws from
type Ledger interface {
	// BalanceOf - current balance of the account, zero for unknown accounts
	BalanceOf(ctx context.Context, account entity.Account) (int64, error)
	// Transfer - atomically debit from and credit to, ErrInsufficientBalance when from cannot cover
	Transfer(ctx context.Context, from, to entity.Account, amount int64) error
}

// EventRepository - notification sink; recorded events become visible on commit
type EventRepository interface {
	// Notify - record an event inside the current unit of work
	Notify(ctx context.Context, e entity.Event) error
	// ListEvents - list recorded events, oldest first
	ListEvents(ctx context.Context, f EventFilter) ([]entity.Event, error)
}

// Transactor - runs fn as one unit of work; any error rolls back everything fn did
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
