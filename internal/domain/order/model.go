package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vidinfra/subflow/internal/types"
)

// Order is the engine's view of a host-platform order. The host platform owns
// generic order storage and checkout; the engine only consumes and mutates the
// well-defined attributes modelled here.
type Order struct {
	ID         string            `db:"id" json:"id"`
	CustomerID string            `db:"customer_id" json:"customer_id"`
	Status     types.OrderStatus `db:"status" json:"status"`
	Currency   string            `db:"currency" json:"currency"`

	// PaymentMethod is empty for manual (non-gateway-managed) payments.
	PaymentMethod          string `db:"payment_method" json:"payment_method"`
	ShippingMethod         string `db:"shipping_method" json:"shipping_method"`
	RecurringPaymentMethod string `db:"recurring_payment_method" json:"recurring_payment_method"`

	// Order-level totals as computed by the host checkout.
	Total         decimal.Decimal `db:"total" json:"total"`
	DiscountTotal decimal.Decimal `db:"discount_total" json:"discount_total"`
	TaxTotal      decimal.Decimal `db:"tax_total" json:"tax_total"`
	ShippingTotal decimal.Decimal `db:"shipping_total" json:"shipping_total"`

	// Recurring mirrors of the order-level totals: the per-period amounts the
	// renewal record generator replays into billing records.
	RecurringTotal         decimal.Decimal `db:"recurring_total" json:"recurring_total"`
	RecurringDiscountTotal decimal.Decimal `db:"recurring_discount_total" json:"recurring_discount_total"`
	RecurringTaxTotal      decimal.Decimal `db:"recurring_tax_total" json:"recurring_tax_total"`
	RecurringShippingTotal decimal.Decimal `db:"recurring_shipping_total" json:"recurring_shipping_total"`

	// OriginalOrderID points a renewal record back at the order that owns the
	// subscription. Empty on originals.
	OriginalOrderID string `db:"original_order_id" json:"original_order_id"`
	// ReplacementOrderID points a switched original at the order that replaced it.
	ReplacementOrderID string `db:"replacement_order_id" json:"replacement_order_id"`

	// Role is set on renewal records only.
	Role types.OrderRole `db:"role" json:"role,omitempty"`
	// Superseded marks an original whose terms a parent-role renewal replaced.
	Superseded bool `db:"superseded" json:"superseded"`
	// PendingPayment marks a renewal awaiting manual payment.
	PendingPayment bool `db:"pending_payment" json:"pending_payment"`
	// PaymentTimestamp is the billing instant a renewal record was generated
	// for. Nil on originals. Guards duplicate generation.
	PaymentTimestamp *time.Time `db:"payment_timestamp" json:"payment_timestamp"`

	Items        []*LineItem    `json:"items"`
	TaxRows      []*TaxRow      `json:"tax_rows"`
	ShippingRows []*ShippingRow `json:"shipping_rows"`
	FeeRows      []*FeeRow      `json:"fee_rows"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LineItem is one purchased product on an order. Subscription attributes are
// persisted as keyed metadata attached to the line item that represents the
// subscription purchase.
type LineItem struct {
	ID        string `db:"id" json:"id"`
	OrderID   string `db:"order_id" json:"order_id"`
	ProductID string `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"quantity"`

	Subtotal decimal.Decimal `db:"subtotal" json:"subtotal"`
	Total    decimal.Decimal `db:"total" json:"total"`
	Tax      decimal.Decimal `db:"tax" json:"tax"`

	RecurringSubtotal decimal.Decimal `db:"recurring_subtotal" json:"recurring_subtotal"`
	RecurringTotal    decimal.Decimal `db:"recurring_total" json:"recurring_total"`
	RecurringTax      decimal.Decimal `db:"recurring_tax" json:"recurring_tax"`

	// Meta carries the keyed subscription attributes (status, dates, counters).
	Meta map[string]string `db:"-" json:"meta"`
}

// TaxRow is one tax line on an order. Recurring rows are the per-period
// portion duplicated onto renewal records.
type TaxRow struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	Label     string          `db:"label" json:"label"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Recurring bool            `db:"recurring" json:"recurring"`
}

// ShippingRow is one shipping line on an order.
type ShippingRow struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	Method    string          `db:"method" json:"method"`
	Label     string          `db:"label" json:"label"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Recurring bool            `db:"recurring" json:"recurring"`
}

// FeeRow is one fee line on an order.
type FeeRow struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	Name      string          `db:"name" json:"name"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Recurring bool            `db:"recurring" json:"recurring"`
}

// Note is an additive, human-readable audit entry on an order.
type Note struct {
	ID        string    `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Item returns the line item for the given product, or nil.
func (o *Order) Item(productID string) *LineItem {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return item
		}
	}
	return nil
}

// ContainsProduct reports whether the order has a line item for the product.
func (o *Order) ContainsProduct(productID string) bool {
	return o.Item(productID) != nil
}

// IsManual reports whether payments on this order are collected manually
// rather than through a gateway.
func (o *Order) IsManual() bool {
	return o.PaymentMethod == ""
}

// IsRenewal reports whether this order is a renewal record.
func (o *Order) IsRenewal() bool {
	return o.OriginalOrderID != ""
}
