package dto

import (
	"time"

	"github.com/vidinfra/subflow/internal/types"
	"github.com/vidinfra/subflow/internal/validator"
)

// RecordPaymentRequest is the gateway callback for a successful recurring
// payment.
type RecordPaymentRequest struct {
	OrderID   string    `json:"order_id" binding:"required"`
	ProductID string    `json:"product_id" binding:"required"`
	PaidAt    time.Time `json:"paid_at"`
	// RenewalGenerated skips the generator when a manual-renewal path already
	// produced the billing record.
	RenewalGenerated bool `json:"renewal_generated"`
}

func (r *RecordPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *RecordPaymentRequest) Key() types.SubscriptionKey {
	return types.NewSubscriptionKey(r.OrderID, r.ProductID)
}

// RecordFailureRequest is the gateway callback for a failed recurring payment.
type RecordFailureRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
}

func (r *RecordFailureRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *RecordFailureRequest) Key() types.SubscriptionKey {
	return types.NewSubscriptionKey(r.OrderID, r.ProductID)
}
