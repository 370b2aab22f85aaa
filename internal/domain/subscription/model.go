package subscription

import (
	"time"

	"github.com/vidinfra/subflow/internal/types"
)

// Subscription is the central entity: a recurring-billing agreement tied to
// one order and one product. It is never independently persisted; it is a
// materialized view over keyed attributes stored on the originating order's
// line item, with the order as source of truth.
type Subscription struct {
	Key types.SubscriptionKey `json:"key"`

	Status types.SubscriptionStatus `json:"status"`

	// Period and Interval define the billing cycle, e.g. every 2 weeks.
	Period   types.BillingPeriod `json:"period"`
	Interval int                 `json:"interval"`
	// Length is the total number of billing periods; 0 means unlimited.
	Length int `json:"length"`

	StartDate time.Time `json:"start_date"`
	// ExpiryDate is zero when the subscription never expires.
	ExpiryDate time.Time `json:"expiry_date"`
	// TrialEndDate is zero when there is no free trial.
	TrialEndDate time.Time `json:"trial_expiry_date"`
	// EndDate is zero until the subscription has ended.
	EndDate time.Time `json:"end_date"`

	FailedPayments    int         `json:"failed_payments"`
	CompletedPayments []time.Time `json:"completed_payments"`
	SuspensionCount   int         `json:"suspension_count"`
}

// LastPaymentDate returns the most recent completed payment, or the zero time.
func (s *Subscription) LastPaymentDate() time.Time {
	if len(s.CompletedPayments) == 0 {
		return time.Time{}
	}
	return s.CompletedPayments[len(s.CompletedPayments)-1]
}

// HasTrial reports whether the subscription started with a free trial.
func (s *Subscription) HasTrial() bool {
	return !s.TrialEndDate.IsZero()
}

// InTrial reports whether the trial period is still running at now.
func (s *Subscription) InTrial(now time.Time) bool {
	return s.HasTrial() && now.Before(s.TrialEndDate)
}

// RemainingPayments returns the number of billing periods left, and whether
// the subscription is bounded at all. Unlimited subscriptions return (0, false).
func (s *Subscription) RemainingPayments() (int, bool) {
	if s.Length == 0 {
		return 0, false
	}
	remaining := s.Length - len(s.CompletedPayments)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// NextPaymentDate derives the next billing timestamp after now.
// Rules:
//   - only pending and active subscriptions have future payments
//   - a running trial defers the first payment to the trial end
//   - otherwise the next date is one billing cycle after the last payment (or
//     the start date when nothing has been paid), rolled forward past now so a
//     stale anchor self-heals instead of producing a date in the past
//   - a bounded subscription with all payments completed, or a next date on or
//     past the expiry date, has no next payment (zero time)
func (s *Subscription) NextPaymentDate(now time.Time) (time.Time, error) {
	if !s.Status.IsBillable() {
		return time.Time{}, nil
	}

	if remaining, bounded := s.RemainingPayments(); bounded && remaining == 0 {
		return time.Time{}, nil
	}

	if s.InTrial(now) {
		return s.TrialEndDate, nil
	}

	anchor := s.LastPaymentDate()
	if anchor.IsZero() {
		if s.HasTrial() {
			anchor = s.TrialEndDate
		} else {
			anchor = s.StartDate
		}
	}

	next, err := types.NextBillingDate(anchor, s.Interval, s.Period)
	if err != nil {
		return time.Time{}, err
	}
	for !next.After(now) {
		next, err = types.NextBillingDate(next, s.Interval, s.Period)
		if err != nil {
			return time.Time{}, err
		}
	}

	if !s.ExpiryDate.IsZero() && !next.Before(s.ExpiryDate) {
		return time.Time{}, nil
	}
	return next, nil
}

// ComputeExpiryDate derives the expiry date for a bounded subscription:
// Length billing cycles after the trial end (or the start date without a
// trial). Unbounded subscriptions return the zero time.
func (s *Subscription) ComputeExpiryDate() (time.Time, error) {
	if s.Length == 0 {
		return time.Time{}, nil
	}
	anchor := s.StartDate
	if s.HasTrial() {
		anchor = s.TrialEndDate
	}
	expiry, err := types.NextBillingDate(anchor, s.Interval*s.Length, s.Period)
	if err != nil {
		return time.Time{}, err
	}
	return expiry, nil
}
