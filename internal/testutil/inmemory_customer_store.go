package testutil

import (
	"context"
	"sync"

	"github.com/vidinfra/subflow/internal/domain/customer"
	ierr "github.com/vidinfra/subflow/internal/errors"
)

// InMemoryCustomerStore is an in-memory implementation of customer.Repository.
type InMemoryCustomerStore struct {
	mu        sync.RWMutex
	customers map[string]*customer.Customer
}

func NewInMemoryCustomerStore() *InMemoryCustomerStore {
	return &InMemoryCustomerStore{customers: make(map[string]*customer.Customer)}
}

// Add seeds a customer. Test helper, not part of customer.Repository.
func (s *InMemoryCustomerStore) Add(c *customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc := *c
	s.customers[c.ID] = &cc
}

func (s *InMemoryCustomerStore) Get(ctx context.Context, id string) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, ierr.NewError("customer not found").
			WithHintf("no customer with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	cc := *c
	return &cc, nil
}

func (s *InMemoryCustomerStore) Update(ctx context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[c.ID]; !ok {
		return ierr.NewError("customer not found").
			WithHintf("no customer with id %s", c.ID).
			Mark(ierr.ErrNotFound)
	}
	cc := *c
	s.customers[c.ID] = &cc
	return nil
}
