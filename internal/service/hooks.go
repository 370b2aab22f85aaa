package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vidinfra/subflow/internal/domain/schedule"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/scheduler"
	"github.com/vidinfra/subflow/internal/types"
)

// HookService binds the date-driven scheduled events to billing behavior.
// Every handler tolerates duplicate and late deliveries.
type HookService struct {
	ServiceParams
	status  StatusService
	payment PaymentService
	renewal RenewalService
}

func NewHookService(params ServiceParams, status StatusService, payment PaymentService, renewal RenewalService) *HookService {
	return &HookService{ServiceParams: params, status: status, payment: payment, renewal: renewal}
}

// RegisterAll attaches the lifecycle handlers to the runner.
func (s *HookService) RegisterAll(runner *scheduler.Runner) {
	runner.Register(schedule.HookPaymentDue, s.HandlePaymentDue)
	runner.Register(schedule.HookTrialEnd, s.HandleTrialEnd)
	runner.Register(schedule.HookExpiration, s.HandleExpiration)
	runner.Register(schedule.HookEndOfPrepaidTerm, s.HandleEndOfPrepaidTerm)
}

// HandlePaymentDue runs a billing attempt. The guard converts the runner's
// at-least-once delivery into at most one attempt per billing period.
func (s *HookService) HandlePaymentDue(ctx context.Context, event *schedule.Event) error {
	now := time.Now().UTC()
	ok, err := s.Guard.Allow(ctx, event.OwnerID, event.Key, now)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	o, err := s.OrderRepo.Get(ctx, event.Key.OrderID)
	if err != nil {
		return err
	}

	renewal, err := s.renewal.Generate(ctx, event.Key, types.OrderRoleChild, event.FireAt)
	if err != nil {
		return err
	}
	renewal.PendingPayment = true
	if err := s.OrderRepo.Update(ctx, renewal); err != nil {
		return err
	}

	if types.GatewayCanSchedulePayments(s.GatewayFor(o)) {
		// The gateway integration charges the pending record and reports the
		// outcome through the payment entry points with the renewal already
		// in place.
		return nil
	}

	// Manual renewals: suspend service and leave the pending record for the
	// customer to pay. A successful manual payment reactivates.
	if _, err := s.status.UpdateStatus(ctx, event.Key, types.SubscriptionStatusOnHold); err != nil {
		return err
	}
	s.addOrderNote(ctx, event.Key.OrderID, fmt.Sprintf("Subscription %s awaiting manual renewal payment on order %s.", event.Key, renewal.ID))
	return nil
}

func (s *HookService) HandleTrialEnd(ctx context.Context, event *schedule.Event) error {
	sub, err := s.SubStore.Get(ctx, event.Key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if sub.TrialEndDate.IsZero() || sub.TrialEndDate.After(time.Now().UTC()) {
		// Trial was removed or pushed out after this event was scheduled.
		return nil
	}

	s.addOrderNote(ctx, event.Key.OrderID, fmt.Sprintf("Free trial for subscription %s ended.", event.Key))
	if err := s.EventPublisher.Publish(ctx, types.EventSubscriptionTrialEnded, sub); err != nil {
		s.Logger.Warnw("failed to publish trial ended event", "subscription", event.Key.String(), "error", err)
	}
	return nil
}

func (s *HookService) HandleExpiration(ctx context.Context, event *schedule.Event) error {
	sub, err := s.SubStore.Get(ctx, event.Key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if sub.ExpiryDate.IsZero() || sub.ExpiryDate.After(time.Now().UTC()) {
		return nil
	}
	_, err = s.status.UpdateStatus(ctx, event.Key, types.SubscriptionStatusExpired)
	return err
}

// HandleEndOfPrepaidTerm closes out a cancelled subscription once the period
// the customer already paid for runs out.
func (s *HookService) HandleEndOfPrepaidTerm(ctx context.Context, event *schedule.Event) error {
	sub, err := s.SubStore.Get(ctx, event.Key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if sub.Status != types.SubscriptionStatusCancelled {
		return nil
	}
	if !sub.EndDate.IsZero() {
		return nil
	}

	sub.EndDate = time.Now().UTC()
	if err := s.SubStore.Save(ctx, sub); err != nil {
		return err
	}
	s.addOrderNote(ctx, event.Key.OrderID, fmt.Sprintf("Prepaid term for cancelled subscription %s ended.", event.Key))
	return nil
}
