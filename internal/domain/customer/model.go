package customer

import (
	"context"
	"time"
)

// Roles assigned to customers depending on whether they currently hold an
// active subscription.
const (
	RoleSubscriber = "subscriber"
	RoleCustomer   = "customer"
)

// Customer is the engine's view of a host-platform user account.
type Customer struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`

	// PayingCustomer is maintained by the status state machine: set while the
	// customer holds at least one active subscription.
	PayingCustomer bool   `db:"paying_customer" json:"paying_customer"`
	Role           string `db:"role" json:"role"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	Update(ctx context.Context, customer *Customer) error
}
