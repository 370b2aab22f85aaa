package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vidinfra/subflow/internal/domain/customer"
	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// StatusService is the single authority for subscription status transitions.
// Disallowed transitions never mutate state: they raise an "unable to X"
// lifecycle event, append an audit note and report false.
type StatusService interface {
	// CanUpdateStatus evaluates the transition rule table without mutating
	// anything.
	CanUpdateStatus(ctx context.Context, key types.SubscriptionKey, target types.SubscriptionStatus) (bool, error)

	// UpdateStatus performs the transition with all side effects and reports
	// whether the status actually changed.
	UpdateStatus(ctx context.Context, key types.SubscriptionKey, target types.SubscriptionStatus) (bool, error)

	// Trash moves a subscription to trash, Delete removes its attributes
	// entirely. Delete is only permitted from trash.
	Trash(ctx context.Context, key types.SubscriptionKey) (bool, error)
	Delete(ctx context.Context, key types.SubscriptionKey) (bool, error)
}

type statusService struct {
	ServiceParams
}

func NewStatusService(params ServiceParams) StatusService {
	return &statusService{ServiceParams: params}
}

// allowedTransition is the rule table of §state machine: given the current
// status, the gateway's declared capabilities and whether payments are
// manual, is the transition permitted?
func allowedTransition(current, target types.SubscriptionStatus, gateway types.Gateway, manual bool) bool {
	if current == target {
		return false
	}

	switch target {
	case types.SubscriptionStatusActive:
		// A first payment clearing always activates a pending subscription.
		if current == types.SubscriptionStatusPending {
			return true
		}
		if current == types.SubscriptionStatusOnHold {
			return manual || types.GatewayCanReactivate(gateway)
		}
		return false

	case types.SubscriptionStatusOnHold:
		if current != types.SubscriptionStatusActive && current != types.SubscriptionStatusPending {
			return false
		}
		return manual || types.GatewayCanSuspend(gateway)

	case types.SubscriptionStatusCancelled:
		switch current {
		case types.SubscriptionStatusCancelled, types.SubscriptionStatusExpired, types.SubscriptionStatusTrash:
			return false
		}
		return manual || types.GatewayCanCancel(gateway)

	case types.SubscriptionStatusExpired:
		switch current {
		case types.SubscriptionStatusPending, types.SubscriptionStatusActive,
			types.SubscriptionStatusOnHold, types.SubscriptionStatusCancelled:
			return true
		}
		return false

	case types.SubscriptionStatusSwitched:
		return !current.IsTerminal()

	case types.SubscriptionStatusTrash:
		switch current {
		case types.SubscriptionStatusCancelled, types.SubscriptionStatusSwitched,
			types.SubscriptionStatusExpired, types.SubscriptionStatusFailed:
			return true
		case types.SubscriptionStatusTrash:
			return false
		}
		// Trashing a live subscription is a cancellation in disguise.
		return allowedTransition(current, types.SubscriptionStatusCancelled, gateway, manual)

	case types.SubscriptionStatusFailed:
		return current == types.SubscriptionStatusPending || current == types.SubscriptionStatusOnHold

	default:
		return false
	}
}

func (s *statusService) CanUpdateStatus(ctx context.Context, key types.SubscriptionKey, target types.SubscriptionStatus) (bool, error) {
	if err := target.Validate(); err != nil {
		return false, err
	}
	sub, o, err := s.load(ctx, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return allowedTransition(sub.Status, target, s.GatewayFor(o), o.IsManual()), nil
}

func (s *statusService) UpdateStatus(ctx context.Context, key types.SubscriptionKey, target types.SubscriptionStatus) (bool, error) {
	if err := target.Validate(); err != nil {
		return false, err
	}
	sub, o, err := s.load(ctx, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if !allowedTransition(sub.Status, target, s.GatewayFor(o), o.IsManual()) {
		s.refuse(ctx, sub, o, target)
		return false, nil
	}

	now := time.Now().UTC()
	previous := sub.Status

	// A cancelled subscription that was active keeps serving until the
	// already-paid-through date; ending is deferred to the scheduled
	// end-of-prepaid-term event.
	var paidThrough time.Time
	if target == types.SubscriptionStatusCancelled && previous == types.SubscriptionStatusActive {
		paidThrough, err = sub.NextPaymentDate(now)
		if err != nil {
			return false, err
		}
	}

	sub.Status = target
	switch target {
	case types.SubscriptionStatusCancelled:
		if paidThrough.IsZero() {
			sub.EndDate = now
		}
	case types.SubscriptionStatusExpired, types.SubscriptionStatusSwitched, types.SubscriptionStatusFailed:
		sub.EndDate = now
	case types.SubscriptionStatusOnHold:
		sub.SuspensionCount++
	case types.SubscriptionStatusActive:
		sub.EndDate = time.Time{}
	}

	if err := s.SubStore.Save(ctx, sub); err != nil {
		return false, err
	}

	if err := s.syncSchedules(ctx, sub, o, now, paidThrough); err != nil {
		return false, err
	}
	if err := s.updateCustomerStanding(ctx, sub, o); err != nil {
		return false, err
	}

	s.addOrderNote(ctx, o.ID, fmt.Sprintf("Subscription %s status changed from %s to %s.", key, previous, target))
	s.publishTransition(ctx, sub, previous)

	s.Logger.Infow("subscription status updated",
		"subscription", key.String(),
		"from", previous,
		"to", target,
	)
	return true, nil
}

func (s *statusService) Trash(ctx context.Context, key types.SubscriptionKey) (bool, error) {
	return s.UpdateStatus(ctx, key, types.SubscriptionStatusTrash)
}

// Delete removes the subscription's attributes entirely. Only trashed
// subscriptions can be deleted; the order itself survives.
func (s *statusService) Delete(ctx context.Context, key types.SubscriptionKey) (bool, error) {
	sub, o, err := s.load(ctx, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if sub.Status != types.SubscriptionStatusTrash {
		s.refuse(ctx, sub, o, "deleted")
		return false, nil
	}

	if err := s.SubStore.Delete(ctx, key); err != nil {
		return false, err
	}
	s.cancelAll(ctx, o.CustomerID, key)
	s.addOrderNote(ctx, o.ID, fmt.Sprintf("Subscription %s deleted.", key))
	s.publish(ctx, types.EventSubscriptionDeleted, sub)
	return true, nil
}

func (s *statusService) load(ctx context.Context, key types.SubscriptionKey) (*subscription.Subscription, *order.Order, error) {
	sub, err := s.SubStore.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	o, err := s.OrderRepo.Get(ctx, key.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return sub, o, nil
}

// syncSchedules recomputes the three date-driven scheduled events for the new
// status, plus the end-of-prepaid-term event for deferred cancellations.
func (s *statusService) syncSchedules(ctx context.Context, sub *subscription.Subscription, o *order.Order, now, paidThrough time.Time) error {
	ownerID := o.CustomerID
	key := sub.Key

	switch sub.Status {
	case types.SubscriptionStatusActive:
		next, err := sub.NextPaymentDate(now)
		if err != nil {
			return err
		}
		if !next.IsZero() {
			if err := s.Dispatcher.Schedule(ctx, schedule.HookPaymentDue, ownerID, key, next); err != nil {
				return err
			}
		} else {
			if err := s.Dispatcher.Cancel(ctx, schedule.HookPaymentDue, ownerID, key); err != nil {
				return err
			}
		}

		if sub.TrialEndDate.After(now) {
			if err := s.Dispatcher.Schedule(ctx, schedule.HookTrialEnd, ownerID, key, sub.TrialEndDate); err != nil {
				return err
			}
		}
		if !sub.ExpiryDate.IsZero() && sub.ExpiryDate.After(now) {
			if err := s.Dispatcher.Schedule(ctx, schedule.HookExpiration, ownerID, key, sub.ExpiryDate); err != nil {
				return err
			}
		}
		return s.Dispatcher.Cancel(ctx, schedule.HookEndOfPrepaidTerm, ownerID, key)

	case types.SubscriptionStatusCancelled:
		s.cancelAll(ctx, ownerID, key)
		if !paidThrough.IsZero() {
			return s.Dispatcher.Schedule(ctx, schedule.HookEndOfPrepaidTerm, ownerID, key, paidThrough)
		}
		return nil

	default:
		s.cancelAll(ctx, ownerID, key)
		return nil
	}
}

func (s *statusService) cancelAll(ctx context.Context, ownerID string, key types.SubscriptionKey) {
	for _, hook := range []string{
		schedule.HookPaymentDue,
		schedule.HookTrialEnd,
		schedule.HookExpiration,
		schedule.HookEndOfPrepaidTerm,
	} {
		if err := s.Dispatcher.Cancel(ctx, hook, ownerID, key); err != nil {
			s.Logger.Warnw("failed to cancel scheduled event", "hook", hook, "subscription", key.String(), "error", err)
		}
	}
}

// updateCustomerStanding flips the paying flag and role exactly when the
// customer gains their first, or loses their last, active subscription.
func (s *statusService) updateCustomerStanding(ctx context.Context, sub *subscription.Subscription, o *order.Order) error {
	cust, err := s.CustomerRepo.Get(ctx, o.CustomerID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}

	if sub.Status == types.SubscriptionStatusActive {
		if !cust.PayingCustomer || cust.Role != customer.RoleSubscriber {
			cust.PayingCustomer = true
			cust.Role = customer.RoleSubscriber
			return s.CustomerRepo.Update(ctx, cust)
		}
		return nil
	}

	hasOther, err := s.SubStore.HasOtherActive(ctx, o.CustomerID, sub.Key)
	if err != nil {
		return err
	}
	if !hasOther && (cust.PayingCustomer || cust.Role != customer.RoleCustomer) {
		cust.PayingCustomer = false
		cust.Role = customer.RoleCustomer
		return s.CustomerRepo.Update(ctx, cust)
	}
	return nil
}

func (s *statusService) refuse(ctx context.Context, sub *subscription.Subscription, o *order.Order, target types.SubscriptionStatus) {
	eventName := map[types.SubscriptionStatus]string{
		types.SubscriptionStatusActive:    types.EventUnableToActivate,
		types.SubscriptionStatusOnHold:    types.EventUnableToSuspend,
		types.SubscriptionStatusCancelled: types.EventUnableToCancel,
		types.SubscriptionStatusTrash:     types.EventUnableToTrash,
		"deleted":                         types.EventUnableToDelete,
	}[target]
	if eventName == "" {
		eventName = types.EventUnableToCancel
	}
	if sub.Status == types.SubscriptionStatusOnHold && target == types.SubscriptionStatusActive {
		eventName = types.EventUnableToReactivate
	}

	s.addOrderNote(ctx, o.ID, fmt.Sprintf("Unable to change subscription %s status from %s to %s.", sub.Key, sub.Status, target))
	s.publish(ctx, eventName, sub)
	s.Logger.Warnw("subscription status transition refused",
		"subscription", sub.Key.String(),
		"from", sub.Status,
		"to", target,
	)
}

func (s *statusService) publishTransition(ctx context.Context, sub *subscription.Subscription, previous types.SubscriptionStatus) {
	var eventName string
	switch sub.Status {
	case types.SubscriptionStatusActive:
		eventName = types.EventSubscriptionActivated
		if previous == types.SubscriptionStatusOnHold {
			eventName = types.EventSubscriptionReactivated
		}
	case types.SubscriptionStatusOnHold:
		eventName = types.EventSubscriptionOnHold
	case types.SubscriptionStatusCancelled:
		eventName = types.EventSubscriptionCancelled
	case types.SubscriptionStatusExpired:
		eventName = types.EventSubscriptionExpired
	case types.SubscriptionStatusSwitched:
		eventName = types.EventSubscriptionSwitched
	case types.SubscriptionStatusTrash:
		eventName = types.EventSubscriptionTrashed
	case types.SubscriptionStatusFailed:
		eventName = types.EventSubscriptionPaymentFailed
	default:
		return
	}
	s.publish(ctx, eventName, sub)
}

func (s *statusService) publish(ctx context.Context, eventName string, sub *subscription.Subscription) {
	if err := s.EventPublisher.Publish(ctx, eventName, sub); err != nil {
		s.Logger.Warnw("failed to publish lifecycle event", "event", eventName, "subscription", sub.Key.String(), "error", err)
	}
}

