package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// SubscriptionService manages subscription records themselves: creation at
// checkout, lookup, and payment date changes.
type SubscriptionService interface {
	// CreatePending attaches a pending subscription to an order line item at
	// checkout time.
	CreatePending(ctx context.Context, key types.SubscriptionKey, terms *SubscriptionTerms) (*subscription.Subscription, error)

	Get(ctx context.Context, key types.SubscriptionKey) (*subscription.Subscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*subscription.Subscription, error)

	// UpdateNextPaymentDate moves the next scheduled payment. Refused when
	// there is no future payment, the date falls inside the trial, on or
	// after the expiry date, or in the past, or when the gateway does not
	// support date changes.
	UpdateNextPaymentDate(ctx context.Context, key types.SubscriptionKey, newDate time.Time) error
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{ServiceParams: params}
}

func (s *subscriptionService) CreatePending(ctx context.Context, key types.SubscriptionKey, terms *SubscriptionTerms) (*subscription.Subscription, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if terms == nil {
		return nil, ierr.NewError("subscription terms are required").
			WithHint("A subscription cannot be created without billing terms").
			Mark(ierr.ErrValidation)
	}
	if err := terms.Period.Validate(); err != nil {
		return nil, err
	}
	if terms.Interval <= 0 {
		return nil, ierr.NewError("billing interval must be positive").
			WithReportableDetails(map[string]any{"interval": terms.Interval}).
			Mark(ierr.ErrValidation)
	}
	if terms.TrialPeriod != "" {
		if err := terms.TrialPeriod.Validate(); err != nil {
			return nil, err
		}
	}

	if existing, err := s.SubStore.Get(ctx, key); err == nil && existing != nil {
		return nil, ierr.NewError("subscription already exists").
			WithHintf("order %s already carries a subscription for product %s", key.OrderID, key.ProductID).
			Mark(ierr.ErrAlreadyExists)
	} else if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &subscription.Subscription{
		Key:       key,
		Status:    types.SubscriptionStatusPending,
		Period:    terms.Period,
		Interval:  terms.Interval,
		Length:    terms.Length,
		StartDate: now,
	}
	if terms.TrialLength > 0 {
		trialEnd, err := types.NextBillingDate(now, terms.TrialLength, terms.EffectiveTrialPeriod())
		if err != nil {
			return nil, err
		}
		sub.TrialEndDate = trialEnd
	}
	expiry, err := sub.ComputeExpiryDate()
	if err != nil {
		return nil, err
	}
	sub.ExpiryDate = expiry

	if err := s.SubStore.Save(ctx, sub); err != nil {
		return nil, err
	}
	s.saveCartTerms(ctx, key, terms)

	s.addOrderNote(ctx, key.OrderID, fmt.Sprintf("Subscription %s created (pending first payment).", key))
	if err := s.EventPublisher.Publish(ctx, types.EventSubscriptionCreated, sub); err != nil {
		s.Logger.Warnw("failed to publish subscription created event", "subscription", key.String(), "error", err)
	}

	s.Logger.Infow("subscription created",
		"subscription", key.String(),
		"period", sub.Period,
		"interval", sub.Interval,
		"length", sub.Length,
		"trial_end", sub.TrialEndDate,
	)
	return sub, nil
}

// saveCartTerms persists the cart-facing attributes (sign-up fee, trial
// length) alongside the lifecycle attributes, for later switches.
func (s *subscriptionService) saveCartTerms(ctx context.Context, key types.SubscriptionKey, terms *SubscriptionTerms) {
	o, err := s.OrderRepo.Get(ctx, key.OrderID)
	if err != nil {
		return
	}
	item := o.Item(key.ProductID)
	if item == nil {
		return
	}
	if terms.SignUpFee.IsPositive() {
		item.Meta[subscription.MetaSignUpFee] = terms.SignUpFee.String()
	}
	if terms.TrialLength > 0 {
		item.Meta[subscription.MetaTrialLength] = strconv.Itoa(terms.TrialLength)
	}
	if err := s.OrderRepo.Update(ctx, o); err != nil {
		s.Logger.Warnw("failed to persist cart terms", "subscription", key.String(), "error", err)
	}
}

func (s *subscriptionService) Get(ctx context.Context, key types.SubscriptionKey) (*subscription.Subscription, error) {
	return s.SubStore.Get(ctx, key)
}

func (s *subscriptionService) ListByCustomer(ctx context.Context, customerID string) ([]*subscription.Subscription, error) {
	return s.SubStore.ListByCustomer(ctx, customerID)
}

func (s *subscriptionService) UpdateNextPaymentDate(ctx context.Context, key types.SubscriptionKey, newDate time.Time) error {
	sub, err := s.SubStore.Get(ctx, key)
	if err != nil {
		return err
	}
	o, err := s.OrderRepo.Get(ctx, key.OrderID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	newDate = newDate.UTC()

	refuse := func(reason string) error {
		s.addOrderNote(ctx, key.OrderID, fmt.Sprintf("Unable to change next payment date for subscription %s: %s.", key, reason))
		if err := s.EventPublisher.Publish(ctx, types.EventUnableToChangeDate, sub); err != nil {
			s.Logger.Warnw("failed to publish date change refused event", "subscription", key.String(), "error", err)
		}
		return ierr.NewError("cannot change next payment date").
			WithHint(reason).
			WithReportableDetails(map[string]any{
				"subscription": key.String(),
				"new_date":     newDate,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if !types.GatewayCanChangeDates(s.GatewayFor(o)) {
		return refuse("the payment gateway does not support date changes")
	}
	next, err := sub.NextPaymentDate(now)
	if err != nil {
		return err
	}
	if next.IsZero() {
		return refuse("the subscription has no future payment")
	}
	if !newDate.After(now) {
		return refuse("the new date is in the past")
	}
	if sub.HasTrial() && newDate.Before(sub.TrialEndDate) {
		return refuse("the new date falls before the trial ends")
	}
	if !sub.ExpiryDate.IsZero() && !newDate.Before(sub.ExpiryDate) {
		return refuse("the new date falls on or after the expiry date")
	}

	if err := s.Dispatcher.Schedule(ctx, schedule.HookPaymentDue, o.CustomerID, key, newDate); err != nil {
		return err
	}

	s.addOrderNote(ctx, key.OrderID, fmt.Sprintf("Next payment date for subscription %s moved from %s to %s.",
		key, next.Format(time.RFC3339), newDate.Format(time.RFC3339)))
	if err := s.EventPublisher.Publish(ctx, types.EventPaymentDateChanged, sub); err != nil {
		s.Logger.Warnw("failed to publish date changed event", "subscription", key.String(), "error", err)
	}
	return nil
}
