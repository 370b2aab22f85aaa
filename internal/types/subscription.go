package types

import (
	"fmt"
	"strings"

	ierr "github.com/vidinfra/subflow/internal/errors"
)

// SubscriptionKey is the composite identity of a subscription: the originating
// order plus the subscription product purchased on it. A renewal never creates
// a new identity, it only appends history to the existing one.
type SubscriptionKey struct {
	OrderID   string `json:"order_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
}

func NewSubscriptionKey(orderID, productID string) SubscriptionKey {
	return SubscriptionKey{OrderID: orderID, ProductID: productID}
}

// String renders the legacy "orderID_productID" form used in attribute keys
// and scheduled event arguments.
func (k SubscriptionKey) String() string {
	return fmt.Sprintf("%s_%s", k.OrderID, k.ProductID)
}

func (k SubscriptionKey) IsZero() bool {
	return k.OrderID == "" && k.ProductID == ""
}

func (k SubscriptionKey) Validate() error {
	if k.OrderID == "" || k.ProductID == "" {
		return ierr.NewError("invalid subscription key").
			WithHint("Both order ID and product ID are required").
			WithReportableDetails(map[string]any{
				"order_id":   k.OrderID,
				"product_id": k.ProductID,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ParseSubscriptionKey parses the legacy underscore-joined form. Only the
// first underscore separates the parts, so product IDs containing
// underscores survive the round trip as long as order IDs do not.
func ParseSubscriptionKey(s string) (SubscriptionKey, error) {
	orderID, productID, found := strings.Cut(s, "_")
	if !found || orderID == "" || productID == "" {
		return SubscriptionKey{}, ierr.NewErrorf("malformed subscription key %q", s).
			WithHint("Subscription key must be of the form orderID_productID").
			Mark(ierr.ErrValidation)
	}
	return SubscriptionKey{OrderID: orderID, ProductID: productID}, nil
}
