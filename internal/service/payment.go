package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vidinfra/subflow/internal/domain/customer"
	"github.com/vidinfra/subflow/internal/domain/schedule"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// PaymentService is the entry point gateways and manual flows call when a
// recurring payment completes or fails.
type PaymentService interface {
	// RecordPayment registers a successful recurring payment. When the
	// renewal record was already generated by a manual-renewal path, pass
	// renewalGenerated to skip regenerating it.
	RecordPayment(ctx context.Context, key types.SubscriptionKey, paidAt time.Time, renewalGenerated bool) error

	// RecordFailure registers a failed recurring payment. Below the
	// configured failure maximum the subscription goes on hold with a failed
	// child renewal for manual remediation; once the maximum is reached the
	// subscription is cancelled and a parent renewal is generated so the
	// customer can re-purchase under current terms.
	RecordFailure(ctx context.Context, key types.SubscriptionKey) error
}

type paymentService struct {
	ServiceParams
	status  StatusService
	renewal RenewalService
}

func NewPaymentService(params ServiceParams, status StatusService, renewal RenewalService) PaymentService {
	return &paymentService{ServiceParams: params, status: status, renewal: renewal}
}

func (s *paymentService) RecordPayment(ctx context.Context, key types.SubscriptionKey, paidAt time.Time, renewalGenerated bool) error {
	sub, err := s.SubStore.Get(ctx, key)
	if err != nil {
		return err
	}
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	paidAt = paidAt.UTC()

	sub.CompletedPayments = append(sub.CompletedPayments, paidAt)
	sub.FailedPayments = 0
	sub.SuspensionCount = 0
	if err := s.SubStore.Save(ctx, sub); err != nil {
		return err
	}

	if err := s.markCustomerPaying(ctx, key.OrderID); err != nil {
		return err
	}

	if !renewalGenerated {
		renewal, err := s.renewal.Generate(ctx, key, types.OrderRoleChild, paidAt)
		if err != nil {
			return err
		}
		renewal.Status = types.OrderStatusCompleted
		renewal.PendingPayment = false
		if err := s.OrderRepo.Update(ctx, renewal); err != nil {
			return err
		}
	}

	switch sub.Status {
	case types.SubscriptionStatusPending, types.SubscriptionStatusOnHold:
		if _, err := s.status.UpdateStatus(ctx, key, types.SubscriptionStatusActive); err != nil {
			return err
		}
	case types.SubscriptionStatusActive:
		// Activation already re-schedules; an already-active subscription
		// needs its next payment-due event refreshed here.
		if err := s.scheduleNextPayment(ctx, key); err != nil {
			return err
		}
	}

	s.addOrderNote(ctx, key.OrderID, fmt.Sprintf("Recurring payment for subscription %s recorded at %s.", key, paidAt.Format(time.RFC3339)))
	if err := s.EventPublisher.Publish(ctx, types.EventSubscriptionPaymentProcessed, sub); err != nil {
		s.Logger.Warnw("failed to publish payment processed event", "subscription", key.String(), "error", err)
	}

	s.Logger.Infow("recurring payment recorded",
		"subscription", key.String(),
		"paid_at", paidAt,
		"completed_payments", len(sub.CompletedPayments),
	)
	return nil
}

func (s *paymentService) RecordFailure(ctx context.Context, key types.SubscriptionKey) error {
	sub, err := s.SubStore.Get(ctx, key)
	if err != nil {
		return err
	}

	sub.FailedPayments++
	if err := s.SubStore.Save(ctx, sub); err != nil {
		return err
	}
	failed := sub.FailedPayments
	now := time.Now().UTC()

	if failed >= s.Config.Billing.MaxFailedPayments {
		if _, err := s.status.UpdateStatus(ctx, key, types.SubscriptionStatusCancelled); err != nil {
			return err
		}
		// The customer must re-purchase under current terms.
		if _, err := s.renewal.Generate(ctx, key, types.OrderRoleParent, now); err != nil {
			return err
		}
	} else {
		if _, err := s.status.UpdateStatus(ctx, key, types.SubscriptionStatusOnHold); err != nil {
			return err
		}
		renewal, err := s.renewal.Generate(ctx, key, types.OrderRoleChild, now)
		if err != nil {
			return err
		}
		renewal.Status = types.OrderStatusFailed
		if err := s.OrderRepo.Update(ctx, renewal); err != nil {
			return err
		}
	}

	s.addOrderNote(ctx, key.OrderID, fmt.Sprintf("Recurring payment for subscription %s failed (%d failed payments).", key, failed))
	if err := s.EventPublisher.Publish(ctx, types.EventSubscriptionPaymentFailed, sub); err != nil {
		s.Logger.Warnw("failed to publish payment failed event", "subscription", key.String(), "error", err)
	}

	s.Logger.Warnw("recurring payment failure recorded",
		"subscription", key.String(),
		"failed_payments", failed,
		"max_failed_payments", s.Config.Billing.MaxFailedPayments,
	)
	return nil
}

func (s *paymentService) markCustomerPaying(ctx context.Context, orderID string) error {
	o, err := s.OrderRepo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	cust, err := s.CustomerRepo.Get(ctx, o.CustomerID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if cust.PayingCustomer && cust.Role == customer.RoleSubscriber {
		return nil
	}
	cust.PayingCustomer = true
	cust.Role = customer.RoleSubscriber
	return s.CustomerRepo.Update(ctx, cust)
}

func (s *paymentService) scheduleNextPayment(ctx context.Context, key types.SubscriptionKey) error {
	sub, err := s.SubStore.Get(ctx, key)
	if err != nil {
		return err
	}
	o, err := s.OrderRepo.Get(ctx, key.OrderID)
	if err != nil {
		return err
	}
	next, err := sub.NextPaymentDate(time.Now().UTC())
	if err != nil {
		return err
	}
	if next.IsZero() {
		return s.Dispatcher.Cancel(ctx, schedule.HookPaymentDue, o.CustomerID, key)
	}
	return s.Dispatcher.Schedule(ctx, schedule.HookPaymentDue, o.CustomerID, key, next)
}
