package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vidinfra/subflow/internal/domain/customer"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/postgres"
)

type customerRepository struct {
	client *postgres.Client
	log    *logger.Logger
}

func NewCustomerRepository(client *postgres.Client, log *logger.Logger) customer.Repository {
	return &customerRepository{client: client, log: log}
}

func (r *customerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.client.DB.GetContext(ctx, &c, `
		SELECT id, email, paying_customer, role, created_at, updated_at FROM customers WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("customer not found").
			WithHintf("no customer with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, dbErr(err, "failed to load customer")
	}
	return &c, nil
}

func (r *customerRepository) Update(ctx context.Context, c *customer.Customer) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.client.DB.NamedExecContext(ctx, `
		UPDATE customers SET email = :email, paying_customer = :paying_customer, role = :role,
			updated_at = :updated_at
		WHERE id = :id`, c)
	if err != nil {
		return dbErr(err, "failed to update customer")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("customer not found").
			WithHintf("no customer with id %s", c.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
