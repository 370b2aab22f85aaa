package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vidinfra/subflow/internal/domain/order"
	ierr "github.com/vidinfra/subflow/internal/errors"
)

// InMemoryOrderStore is an in-memory implementation of order.Repository.
type InMemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
	notes  map[string][]*order.Note
}

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders: make(map[string]*order.Order),
		notes:  make(map[string][]*order.Note),
	}
}

func (s *InMemoryOrderStore) Create(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ierr.NewError("order already exists").
			WithHintf("order %s already exists", o.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *InMemoryOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ierr.NewError("order not found").
			WithHintf("no order with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (s *InMemoryOrderStore) Update(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return ierr.NewError("order not found").
			WithHintf("no order with id %s", o.ID).
			Mark(ierr.ErrNotFound)
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *InMemoryOrderStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	delete(s.notes, id)
	return nil
}

func (s *InMemoryOrderStore) AddNote(ctx context.Context, note *order.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.OrderID] = append(s.notes[note.OrderID], note)
	return nil
}

func (s *InMemoryOrderStore) ListNotes(ctx context.Context, orderID string) ([]*order.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := make([]*order.Note, len(s.notes[orderID]))
	copy(notes, s.notes[orderID])
	return notes, nil
}

func (s *InMemoryOrderStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []*order.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *InMemoryOrderStore) ListRenewals(ctx context.Context, originalOrderID string) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []*order.Order
	for _, o := range s.orders {
		if o.OriginalOrderID == originalOrderID {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *InMemoryOrderStore) FindRenewalByPaymentTimestamp(ctx context.Context, originalOrderID string, ts time.Time) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.OriginalOrderID == originalOrderID && o.PaymentTimestamp != nil && o.PaymentTimestamp.Equal(ts) {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

// copyOrder deep-copies so callers cannot mutate stored state in place,
// matching real repository semantics.
func copyOrder(o *order.Order) *order.Order {
	c := *o
	if o.PaymentTimestamp != nil {
		ts := *o.PaymentTimestamp
		c.PaymentTimestamp = &ts
	}
	c.Items = make([]*order.LineItem, 0, len(o.Items))
	for _, item := range o.Items {
		ic := *item
		ic.Meta = make(map[string]string, len(item.Meta))
		for k, v := range item.Meta {
			ic.Meta[k] = v
		}
		c.Items = append(c.Items, &ic)
	}
	c.TaxRows = make([]*order.TaxRow, 0, len(o.TaxRows))
	for _, row := range o.TaxRows {
		rc := *row
		c.TaxRows = append(c.TaxRows, &rc)
	}
	c.ShippingRows = make([]*order.ShippingRow, 0, len(o.ShippingRows))
	for _, row := range o.ShippingRows {
		rc := *row
		c.ShippingRows = append(c.ShippingRows, &rc)
	}
	c.FeeRows = make([]*order.FeeRow, 0, len(o.FeeRows))
	for _, row := range o.FeeRows {
		rc := *row
		c.FeeRows = append(c.FeeRows, &rc)
	}
	return &c
}
