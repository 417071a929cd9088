package http

import (
	"time"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
	"subs_engine/internal/entity"
)

// SubscribeInput - body of POST /subscriptions; the caller is the subscriber
type SubscribeInput struct {
	// StartTime - unix seconds of the period 0 boundary
	StartTime *int64 `json:"start_time"`
	// WeeklyAmount - amount pulled per whole week
	WeeklyAmount *int64 `json:"weekly_amount"`
	// Spender - account allowed to withdraw
	Spender *string `json:"spender"`
}

// Validate validates this subscribe input
func (m *SubscribeInput) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("start_time", "body", m.StartTime); err != nil {
		res = append(res, err)
	} else if err := validate.MinimumInt("start_time", "body", *m.StartTime, 0, false); err != nil {
		res = append(res, err)
	}

	if err := validate.Required("weekly_amount", "body", m.WeeklyAmount); err != nil {
		res = append(res, err)
	} else if err := validate.MinimumInt("weekly_amount", "body", *m.WeeklyAmount, 1, false); err != nil {
		res = append(res, err)
	}

	if err := validate.Required("spender", "body", m.Spender); err != nil {
		res = append(res, err)
	} else if err := validate.MinLength("spender", "body", *m.Spender, 1); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// WithdrawInput - body of POST /withdrawals; the caller is the spender
type WithdrawInput struct {
	Subscriber *string `json:"subscriber"`
}

// Validate validates this withdraw input
func (m *WithdrawInput) Validate(formats strfmt.Registry) error {
	if err := validate.Required("subscriber", "body", m.Subscriber); err != nil {
		return err
	}
	if err := validate.MinLength("subscriber", "body", *m.Subscriber, 1); err != nil {
		return err
	}
	return nil
}

// BatchWithdrawInput - body of POST /withdrawals/batch; the caller is the common spender
type BatchWithdrawInput struct {
	Subscribers []string `json:"subscribers"`
}

// Validate validates this batch withdraw input
func (m *BatchWithdrawInput) Validate(formats strfmt.Registry) error {
	if err := validate.Required("subscribers", "body", m.Subscribers); err != nil {
		return err
	}
	return nil
}

// RelayWithdrawInput - body of POST /withdrawals/relay
type RelayWithdrawInput struct {
	Subscribers []string `json:"subscribers"`
	Spenders    []string `json:"spenders"`
}

// Validate validates this relay withdraw input. Length mismatches are left to the use case.
func (m *RelayWithdrawInput) Validate(formats strfmt.Registry) error {
	var res []error
	if err := validate.Required("subscribers", "body", m.Subscribers); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("spenders", "body", m.Spenders); err != nil {
		res = append(res, err)
	}
	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// SubscriptionView - subscription as returned by the API
type SubscriptionView struct {
	Subscriber   string `json:"subscriber"`
	Spender      string `json:"spender"`
	StartTime    int64  `json:"start_time"`
	WeeklyAmount int64  `json:"weekly_amount"`
	PeriodsPaid  int64  `json:"periods_paid"`
	UpdatedAt    string `json:"updated_at"`
}

// PreviewView - subscription with what it owes right now
type PreviewView struct {
	SubscriptionView
	DuePeriods int64 `json:"due_periods"`
	Owed       int64 `json:"owed"`
}

// EventView - notification as returned by the API
type EventView struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	StartTime *int64 `json:"start_time,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toSubscriptionView(s *entity.Subscription) SubscriptionView {
	return SubscriptionView{
		Subscriber:   s.Subscriber.String(),
		Spender:      s.Spender.String(),
		StartTime:    s.StartTime.Unix(),
		WeeklyAmount: s.WeeklyAmount,
		PeriodsPaid:  s.PeriodsPaid,
		UpdatedAt:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toEventView(e entity.Event) EventView {
	v := EventView{
		ID:        e.ID.String(),
		Type:      string(e.Type),
		From:      e.From.String(),
		To:        e.To.String(),
		Amount:    e.Amount,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.StartTime != nil {
		v.StartTime = swag.Int64(e.StartTime.Unix())
	}
	return v
}

func toAccounts(in []string) []entity.Account {
	out := make([]entity.Account, len(in))
	for i, a := range in {
		out[i] = entity.Account(a)
	}
	return out
}
