package order

import (
	"context"
	"time"
)

// Repository provides access to the engine-visible slice of the host
// platform's order store.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	Delete(ctx context.Context, id string) error

	// AddNote appends a human-readable audit note to an order.
	AddNote(ctx context.Context, note *Note) error
	ListNotes(ctx context.Context, orderID string) ([]*Note, error)

	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)

	// ListRenewals returns all renewal records pointing back at the order.
	ListRenewals(ctx context.Context, originalOrderID string) ([]*Order, error)
	// FindRenewalByPaymentTimestamp returns the renewal record generated for
	// the given billing instant, if one exists. Guards duplicate generation.
	FindRenewalByPaymentTimestamp(ctx context.Context, originalOrderID string, ts time.Time) (*Order, error)
}
