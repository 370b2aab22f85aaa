package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/vidinfra/subflow/internal/domain/order"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/postgres"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type orderRepository struct {
	client *postgres.Client
	log    *logger.Logger
}

func NewOrderRepository(client *postgres.Client, log *logger.Logger) order.Repository {
	return &orderRepository{client: client, log: log}
}

// lineItemRow carries the JSONB meta column alongside the line item fields.
type lineItemRow struct {
	order.LineItem
	MetaRaw []byte `db:"meta"`
}

const orderColumns = `id, customer_id, status, currency, payment_method, shipping_method,
	recurring_payment_method, total, discount_total, tax_total, shipping_total,
	recurring_total, recurring_discount_total, recurring_tax_total, recurring_shipping_total,
	original_order_id, replacement_order_id, role, superseded, pending_payment,
	payment_timestamp, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (:id, :customer_id, :status, :currency, :payment_method, :shipping_method,
				:recurring_payment_method, :total, :discount_total, :tax_total, :shipping_total,
				:recurring_total, :recurring_discount_total, :recurring_tax_total, :recurring_shipping_total,
				:original_order_id, :replacement_order_id, :role, :superseded, :pending_payment,
				:payment_timestamp, :created_at, :updated_at)`, o); err != nil {
			return dbErr(err, "failed to insert order")
		}
		return r.insertChildren(ctx, tx, o)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := r.client.DB.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("order not found").
			WithHintf("no order with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, dbErr(err, "failed to load order")
	}
	if err := r.loadChildren(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) Update(ctx context.Context, o *order.Order) error {
	o.UpdatedAt = time.Now().UTC()
	return r.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE orders SET
				customer_id = :customer_id, status = :status, currency = :currency,
				payment_method = :payment_method, shipping_method = :shipping_method,
				recurring_payment_method = :recurring_payment_method,
				total = :total, discount_total = :discount_total,
				tax_total = :tax_total, shipping_total = :shipping_total,
				recurring_total = :recurring_total, recurring_discount_total = :recurring_discount_total,
				recurring_tax_total = :recurring_tax_total, recurring_shipping_total = :recurring_shipping_total,
				original_order_id = :original_order_id, replacement_order_id = :replacement_order_id,
				role = :role, superseded = :superseded, pending_payment = :pending_payment,
				payment_timestamp = :payment_timestamp, updated_at = :updated_at
			WHERE id = :id`, o)
		if err != nil {
			return dbErr(err, "failed to update order")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ierr.NewError("order not found").
				WithHintf("no order with id %s", o.ID).
				Mark(ierr.ErrNotFound)
		}

		// Child rows are replaced wholesale; they are few and have no
		// identity of their own beyond the order.
		for _, table := range []string{"order_items", "order_tax_rows", "order_shipping_rows", "order_fee_rows"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE order_id = $1`, o.ID); err != nil {
				return dbErr(err, "failed to clear order rows")
			}
		}
		return r.insertChildren(ctx, tx, o)
	})
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	return r.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"order_items", "order_tax_rows", "order_shipping_rows", "order_fee_rows", "order_notes"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE order_id = $1`, id); err != nil {
				return dbErr(err, "failed to delete order rows")
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
			return dbErr(err, "failed to delete order")
		}
		return nil
	})
}

func (r *orderRepository) AddNote(ctx context.Context, note *order.Note) error {
	_, err := r.client.DB.NamedExecContext(ctx, `
		INSERT INTO order_notes (id, order_id, content, created_at)
		VALUES (:id, :order_id, :content, :created_at)`, note)
	if err != nil {
		return dbErr(err, "failed to insert order note")
	}
	return nil
}

func (r *orderRepository) ListNotes(ctx context.Context, orderID string) ([]*order.Note, error) {
	var notes []*order.Note
	err := r.client.DB.SelectContext(ctx, &notes, `
		SELECT id, order_id, content, created_at FROM order_notes
		WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, dbErr(err, "failed to list order notes")
	}
	return notes, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	var orders []*order.Order
	err := r.client.DB.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at`, customerID)
	if err != nil {
		return nil, dbErr(err, "failed to list orders by customer")
	}
	for _, o := range orders {
		if err := r.loadChildren(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) ListRenewals(ctx context.Context, originalOrderID string) ([]*order.Order, error) {
	var orders []*order.Order
	err := r.client.DB.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+` FROM orders WHERE original_order_id = $1 ORDER BY created_at`, originalOrderID)
	if err != nil {
		return nil, dbErr(err, "failed to list renewal orders")
	}
	for _, o := range orders {
		if err := r.loadChildren(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) FindRenewalByPaymentTimestamp(ctx context.Context, originalOrderID string, ts time.Time) (*order.Order, error) {
	var o order.Order
	err := r.client.DB.GetContext(ctx, &o, `
		SELECT `+orderColumns+` FROM orders
		WHERE original_order_id = $1 AND payment_timestamp = $2`, originalOrderID, ts.UTC())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err, "failed to find renewal by payment timestamp")
	}
	if err := r.loadChildren(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) insertChildren(ctx context.Context, tx *sqlx.Tx, o *order.Order) error {
	for _, item := range o.Items {
		metaRaw, err := json.Marshal(item.Meta)
		if err != nil {
			return dbErr(err, "failed to encode line item meta")
		}
		row := &lineItemRow{LineItem: *item, MetaRaw: metaRaw}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, quantity,
				subtotal, total, tax, recurring_subtotal, recurring_total, recurring_tax, meta)
			VALUES (:id, :order_id, :product_id, :name, :quantity,
				:subtotal, :total, :tax, :recurring_subtotal, :recurring_total, :recurring_tax, :meta)`, row); err != nil {
			return dbErr(err, "failed to insert line item")
		}
	}
	for _, row := range o.TaxRows {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_tax_rows (id, order_id, label, amount, recurring)
			VALUES (:id, :order_id, :label, :amount, :recurring)`, row); err != nil {
			return dbErr(err, "failed to insert tax row")
		}
	}
	for _, row := range o.ShippingRows {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_shipping_rows (id, order_id, method, label, amount, recurring)
			VALUES (:id, :order_id, :method, :label, :amount, :recurring)`, row); err != nil {
			return dbErr(err, "failed to insert shipping row")
		}
	}
	for _, row := range o.FeeRows {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_fee_rows (id, order_id, name, amount, recurring)
			VALUES (:id, :order_id, :name, :amount, :recurring)`, row); err != nil {
			return dbErr(err, "failed to insert fee row")
		}
	}
	return nil
}

func (r *orderRepository) loadChildren(ctx context.Context, o *order.Order) error {
	var items []*lineItemRow
	if err := r.client.DB.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, name, quantity, subtotal, total, tax,
			recurring_subtotal, recurring_total, recurring_tax, meta
		FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return dbErr(err, "failed to load line items")
	}
	o.Items = make([]*order.LineItem, 0, len(items))
	for _, row := range items {
		item := row.LineItem
		if len(row.MetaRaw) > 0 {
			if err := json.Unmarshal(row.MetaRaw, &item.Meta); err != nil {
				return dbErr(err, "failed to decode line item meta")
			}
		}
		if item.Meta == nil {
			item.Meta = make(map[string]string)
		}
		o.Items = append(o.Items, &item)
	}

	if err := r.client.DB.SelectContext(ctx, &o.TaxRows, `
		SELECT id, order_id, label, amount, recurring FROM order_tax_rows WHERE order_id = $1`, o.ID); err != nil {
		return dbErr(err, "failed to load tax rows")
	}
	if err := r.client.DB.SelectContext(ctx, &o.ShippingRows, `
		SELECT id, order_id, method, label, amount, recurring FROM order_shipping_rows WHERE order_id = $1`, o.ID); err != nil {
		return dbErr(err, "failed to load shipping rows")
	}
	if err := r.client.DB.SelectContext(ctx, &o.FeeRows, `
		SELECT id, order_id, name, amount, recurring FROM order_fee_rows WHERE order_id = $1`, o.ID); err != nil {
		return dbErr(err, "failed to load fee rows")
	}
	return nil
}

func dbErr(err error, hint string) error {
	return ierr.WithError(err).WithHint(hint).Mark(ierr.ErrDatabase)
}
