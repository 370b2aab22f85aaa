package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vidinfra/subflow/internal/domain/proration"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// SwitchService prorates and completes mid-cycle plan switches.
type SwitchService interface {
	// Quote computes what a switch to newPlan would cost right now, without
	// changing anything. Used while the switch sits in the cart.
	Quote(ctx context.Context, key types.SubscriptionKey, newPlan proration.PlanTerms) (*proration.SwitchResult, error)

	// Complete finalizes a switch after checkout: the old subscription is
	// marked switched and linked to its replacement, and the new
	// subscription's first renewal and length are adjusted per the quote.
	Complete(ctx context.Context, oldKey, newKey types.SubscriptionKey, newPlan proration.PlanTerms) (*proration.SwitchResult, error)
}

type switchService struct {
	ServiceParams
	status     StatusService
	calculator proration.Calculator
}

func NewSwitchService(params ServiceParams, status StatusService, calculator proration.Calculator) SwitchService {
	return &switchService{ServiceParams: params, status: status, calculator: calculator}
}

func (s *switchService) Quote(ctx context.Context, key types.SubscriptionKey, newPlan proration.PlanTerms) (*proration.SwitchResult, error) {
	params, err := s.switchParams(ctx, key, newPlan, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.calculator.Calculate(ctx, *params)
}

func (s *switchService) Complete(ctx context.Context, oldKey, newKey types.SubscriptionKey, newPlan proration.PlanTerms) (*proration.SwitchResult, error) {
	now := time.Now().UTC()
	params, err := s.switchParams(ctx, oldKey, newPlan, now)
	if err != nil {
		return nil, err
	}
	result, err := s.calculator.Calculate(ctx, *params)
	if err != nil {
		return nil, err
	}

	newSub, err := s.SubStore.Get(ctx, newKey)
	if err != nil {
		return nil, err
	}

	// The portion of the old cycle already paid for defers the new
	// subscription's first renewal, expressed as a trial-like deferral.
	firstRenewal := params.NextPaymentAt
	if !result.NextPaymentAt.IsZero() {
		firstRenewal = result.NextPaymentAt
	}
	if firstRenewal.After(now) {
		newSub.TrialEndDate = firstRenewal
	}
	if newPlan.Length > 0 {
		newSub.Length = result.RemainingLength
	}
	expiry, err := newSub.ComputeExpiryDate()
	if err != nil {
		return nil, err
	}
	newSub.ExpiryDate = expiry
	if err := s.SubStore.Save(ctx, newSub); err != nil {
		return nil, err
	}

	oldOrder, err := s.OrderRepo.Get(ctx, oldKey.OrderID)
	if err != nil {
		return nil, err
	}
	oldOrder.ReplacementOrderID = newKey.OrderID
	if err := s.OrderRepo.Update(ctx, oldOrder); err != nil {
		return nil, err
	}

	changed, err := s.status.UpdateStatus(ctx, oldKey, types.SubscriptionStatusSwitched)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ierr.NewError("subscription cannot be switched").
			WithHintf("subscription %s refused the switched status", oldKey).
			Mark(ierr.ErrInvalidTransition)
	}

	s.addOrderNote(ctx, oldKey.OrderID, fmt.Sprintf(
		"Subscription %s switched to %s (%s, gap charge %s, sign-up fee %s).",
		oldKey, newKey, result.Type, result.GapCharge, result.SignUpFee))

	s.Logger.Infow("plan switch completed",
		"old_subscription", oldKey.String(),
		"new_subscription", newKey.String(),
		"switch_type", result.Type,
		"gap_charge", result.GapCharge,
		"first_renewal", firstRenewal,
	)
	return result, nil
}

// switchParams assembles the calculator's inputs from the old subscription's
// current state and the store's proration configuration.
func (s *switchService) switchParams(ctx context.Context, key types.SubscriptionKey, newPlan proration.PlanTerms, now time.Time) (*proration.SwitchParams, error) {
	sub, err := s.SubStore.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if sub.Status != types.SubscriptionStatusActive {
		return nil, ierr.NewError("only active subscriptions can be switched").
			WithReportableDetails(map[string]any{
				"subscription": key.String(),
				"status":       sub.Status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	o, err := s.OrderRepo.Get(ctx, key.OrderID)
	if err != nil {
		return nil, err
	}
	item := o.Item(key.ProductID)
	if item == nil {
		return nil, ierr.NewError("order does not contain the subscription product").
			WithHintf("order %s has no line item for product %s", key.OrderID, key.ProductID).
			Mark(ierr.ErrNotFound)
	}

	next, err := sub.NextPaymentDate(now)
	if err != nil {
		return nil, err
	}
	if next.IsZero() {
		return nil, ierr.NewError("subscription has no future payment to prorate against").
			WithHintf("subscription %s has no next payment date", key).
			Mark(ierr.ErrInvalidOperation)
	}
	last := sub.LastPaymentDate()
	if last.IsZero() {
		last = sub.StartDate
		if sub.HasTrial() {
			last = sub.TrialEndDate
		}
	}

	oldFeePaid := decimal.Zero
	if raw := item.Meta[subscription.MetaSignUpFee]; raw != "" {
		oldFeePaid, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("corrupt sign-up fee attribute on subscription %s", key).
				Mark(ierr.ErrValidation)
		}
	}

	return &proration.SwitchParams{
		OldPlan: proration.PlanTerms{
			PricePerPeriod: item.RecurringTotal,
			Period:         sub.Period,
			Interval:       sub.Interval,
			SignUpFee:      oldFeePaid,
			Length:         sub.Length,
		},
		NewPlan:           newPlan,
		LastPaymentAt:     last,
		NextPaymentAt:     next,
		SwitchAt:          now,
		OldSignUpFeePaid:  oldFeePaid,
		CompletedPayments: len(sub.CompletedPayments),
		SignUpFeeMode:     s.Config.Billing.SwitchSignUpFeeMode,
		ProrateLength:     s.Config.Billing.SwitchProrateLength,
		ExtendOnDowngrade: s.Config.Billing.SwitchExtendOnDowngrade,
	}, nil
}
