package subscription

import (
	"context"

	"github.com/vidinfra/subflow/internal/domain/order"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// Store is the subscription record accessor: a read/write façade over the
// attributes stored on the originating order's line item. The order remains
// the source of truth; the Store only materializes and writes back.
type Store struct {
	orders order.Repository
}

func NewStore(orders order.Repository) *Store {
	return &Store{orders: orders}
}

// Get materializes the subscription identified by key. Missing orders, line
// items or subscription attributes all surface as ErrNotFound.
func (s *Store) Get(ctx context.Context, key types.SubscriptionKey) (*Subscription, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	o, err := s.orders.Get(ctx, key.OrderID)
	if err != nil {
		return nil, err
	}
	item := o.Item(key.ProductID)
	if item == nil {
		return nil, ierr.NewError("order does not contain the subscription product").
			WithHintf("order %s has no line item for product %s", key.OrderID, key.ProductID).
			Mark(ierr.ErrNotFound)
	}
	return DecodeMeta(key, item.Meta)
}

// Save writes the subscription's attributes back onto its order line item.
func (s *Store) Save(ctx context.Context, sub *Subscription) error {
	o, err := s.orders.Get(ctx, sub.Key.OrderID)
	if err != nil {
		return err
	}
	item := o.Item(sub.Key.ProductID)
	if item == nil {
		return ierr.NewError("order does not contain the subscription product").
			WithHintf("order %s has no line item for product %s", sub.Key.OrderID, sub.Key.ProductID).
			Mark(ierr.ErrNotFound)
	}
	if item.Meta == nil {
		item.Meta = make(map[string]string)
	}
	EncodeMeta(sub, item.Meta)
	return s.orders.Update(ctx, o)
}

// Delete removes the subscription attributes from the line item. The line
// item and order survive; only the subscription ceases to exist.
func (s *Store) Delete(ctx context.Context, key types.SubscriptionKey) error {
	o, err := s.orders.Get(ctx, key.OrderID)
	if err != nil {
		return err
	}
	item := o.Item(key.ProductID)
	if item == nil || item.Meta == nil {
		return nil
	}
	StripMeta(item.Meta)
	return s.orders.Update(ctx, o)
}

// ListByCustomer returns every subscription across the customer's orders.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]*Subscription, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	var subs []*Subscription
	for _, o := range orders {
		for _, item := range o.Items {
			if _, ok := item.Meta[MetaStatus]; !ok {
				continue
			}
			sub, err := DecodeMeta(types.NewSubscriptionKey(o.ID, item.ProductID), item.Meta)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// HasOtherActive reports whether the customer holds any active subscription
// besides the one identified by exclude. Drives the paying-customer flag and
// role assignment.
func (s *Store) HasOtherActive(ctx context.Context, customerID string, exclude types.SubscriptionKey) (bool, error) {
	subs, err := s.ListByCustomer(ctx, customerID)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.Key == exclude {
			continue
		}
		if sub.Status == types.SubscriptionStatusActive {
			return true, nil
		}
	}
	return false, nil
}
