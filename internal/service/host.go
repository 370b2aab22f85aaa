package service

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"

	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/pubsub"
	"github.com/vidinfra/subflow/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HostNotification is the envelope the host platform publishes on its topic.
type HostNotification struct {
	Event      string            `json:"event"`
	OrderID    string            `json:"order_id,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
	OldStatus  types.OrderStatus `json:"old_status,omitempty"`
	NewStatus  types.OrderStatus `json:"new_status,omitempty"`
}

// HostService reacts to notifications from the host e-commerce platform:
// order status changes, checkout completions and account deletions.
type HostService interface {
	OrderStatusChanged(ctx context.Context, orderID string, oldStatus, newStatus types.OrderStatus) error
	CheckoutCompleted(ctx context.Context, orderID string) error
	UserDeleted(ctx context.Context, customerID string) error

	// Consume routes notifications from the host topic until the context is
	// cancelled.
	Consume(ctx context.Context, subscriber pubsub.Subscriber, topic string) error
}

type hostService struct {
	ServiceParams
	status  StatusService
	payment PaymentService
}

func NewHostService(params ServiceParams, status StatusService, payment PaymentService) HostService {
	return &hostService{ServiceParams: params, status: status, payment: payment}
}

func (s *hostService) OrderStatusChanged(ctx context.Context, orderID string, oldStatus, newStatus types.OrderStatus) error {
	o, err := s.OrderRepo.Get(ctx, orderID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}

	keys, renewal, err := s.subscriptionKeysFor(ctx, o)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	switch newStatus {
	case types.OrderStatusProcessing, types.OrderStatusCompleted:
		paidAt := time.Now().UTC()
		if o.PaymentTimestamp != nil {
			paidAt = *o.PaymentTimestamp
		}
		for _, key := range keys {
			// A renewal order completing means its record already exists; an
			// original completing is the record itself. Neither needs the
			// generator re-run.
			if err := s.payment.RecordPayment(ctx, key, paidAt, true); err != nil {
				return err
			}
		}
		if renewal && o.PendingPayment {
			o.PendingPayment = false
			o.Status = newStatus
			if err := s.OrderRepo.Update(ctx, o); err != nil {
				return err
			}
		}

	case types.OrderStatusFailed:
		for _, key := range keys {
			if err := s.payment.RecordFailure(ctx, key); err != nil {
				return err
			}
		}

	case types.OrderStatusCancelled, types.OrderStatusRefunded:
		for _, key := range keys {
			if _, err := s.status.UpdateStatus(ctx, key, types.SubscriptionStatusCancelled); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *hostService) CheckoutCompleted(ctx context.Context, orderID string) error {
	o, err := s.OrderRepo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	for _, item := range o.Items {
		if _, ok := item.Meta[subscription.MetaStatus]; !ok {
			continue
		}
		key := types.NewSubscriptionKey(o.ID, item.ProductID)

		// Nothing-due-now checkouts (free trials) never see a payment event,
		// so the subscription activates straight from checkout.
		if o.Total.IsZero() {
			if _, err := s.status.UpdateStatus(ctx, key, types.SubscriptionStatusActive); err != nil {
				return err
			}
			continue
		}
		if o.Status == types.OrderStatusProcessing || o.Status == types.OrderStatusCompleted {
			paidAt := time.Now().UTC()
			if o.PaymentTimestamp != nil {
				paidAt = *o.PaymentTimestamp
			}
			if err := s.payment.RecordPayment(ctx, key, paidAt, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *hostService) UserDeleted(ctx context.Context, customerID string) error {
	subs, err := s.SubStore.ListByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if !sub.Status.IsTerminal() {
			if _, err := s.status.UpdateStatus(ctx, sub.Key, types.SubscriptionStatusCancelled); err != nil {
				return err
			}
		}
		if _, err := s.status.Trash(ctx, sub.Key); err != nil {
			return err
		}
	}
	s.Logger.Infow("trashed subscriptions for deleted user", "customer_id", customerID, "count", len(subs))
	return nil
}

// subscriptionKeysFor resolves the subscriptions an order's status affects.
// Renewal orders resolve through their back-reference to the original, whose
// line items carry the subscription attributes.
func (s *hostService) subscriptionKeysFor(ctx context.Context, o *order.Order) ([]types.SubscriptionKey, bool, error) {
	renewal := o.OriginalOrderID != ""
	owner := o
	if renewal {
		original, err := s.OrderRepo.Get(ctx, o.OriginalOrderID)
		if err != nil {
			if ierr.IsNotFound(err) {
				return nil, renewal, nil
			}
			return nil, renewal, err
		}
		owner = original
	}

	var keys []types.SubscriptionKey
	for _, item := range owner.Items {
		if _, ok := item.Meta[subscription.MetaStatus]; !ok {
			continue
		}
		if renewal && !o.ContainsProduct(item.ProductID) {
			continue
		}
		keys = append(keys, types.NewSubscriptionKey(owner.ID, item.ProductID))
	}
	return keys, renewal, nil
}

func (s *hostService) Consume(ctx context.Context, subscriber pubsub.Subscriber, topic string) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			s.route(ctx, msg)
		}
	}()
	return nil
}

func (s *hostService) route(ctx context.Context, msg *message.Message) {
	var notification HostNotification
	if err := json.Unmarshal(msg.Payload, &notification); err != nil {
		s.Logger.Errorw("dropping malformed host notification", "message_id", msg.UUID, "error", err)
		msg.Ack()
		return
	}

	var err error
	switch notification.Event {
	case types.HostEventOrderStatusChanged:
		err = s.OrderStatusChanged(ctx, notification.OrderID, notification.OldStatus, notification.NewStatus)
	case types.HostEventCheckoutCompleted:
		err = s.CheckoutCompleted(ctx, notification.OrderID)
	case types.HostEventUserDeleted:
		err = s.UserDeleted(ctx, notification.CustomerID)
	default:
		s.Logger.Debugw("ignoring unknown host notification", "event", notification.Event)
	}

	if err != nil {
		s.Logger.Errorw("host notification handling failed",
			"event", notification.Event,
			"message_id", msg.UUID,
			"error", err,
		)
		msg.Nack()
		return
	}
	msg.Ack()
}
