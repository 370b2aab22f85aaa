package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vidinfra/subflow/internal/domain/proration"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	"github.com/vidinfra/subflow/internal/service"
	"github.com/vidinfra/subflow/internal/types"
	"github.com/vidinfra/subflow/internal/validator"
)

// CreateSubscriptionRequest attaches a pending subscription to an order line
// item at checkout.
type CreateSubscriptionRequest struct {
	OrderID     string              `json:"order_id" binding:"required"`
	ProductID   string              `json:"product_id" binding:"required"`
	Period      types.BillingPeriod `json:"period" binding:"required"`
	Interval    int                 `json:"interval" binding:"required,gt=0"`
	Length      int                 `json:"length" binding:"gte=0"`
	TrialLength int                 `json:"trial_length" binding:"gte=0"`
	// TrialPeriod defaults to the billing period when omitted.
	TrialPeriod types.BillingPeriod `json:"trial_period,omitempty"`
	SignUpFee   decimal.Decimal     `json:"sign_up_fee"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Period.Validate(); err != nil {
		return err
	}
	if r.TrialPeriod != "" {
		return r.TrialPeriod.Validate()
	}
	return nil
}

func (r *CreateSubscriptionRequest) Key() types.SubscriptionKey {
	return types.NewSubscriptionKey(r.OrderID, r.ProductID)
}

func (r *CreateSubscriptionRequest) Terms() *service.SubscriptionTerms {
	return &service.SubscriptionTerms{
		Period:      r.Period,
		Interval:    r.Interval,
		Length:      r.Length,
		TrialLength: r.TrialLength,
		TrialPeriod: r.TrialPeriod,
		SignUpFee:   r.SignUpFee,
	}
}

// UpdateStatusRequest requests one status transition.
type UpdateStatusRequest struct {
	Status types.SubscriptionStatus `json:"status" binding:"required"`
}

// UpdateNextPaymentDateRequest moves the next scheduled payment.
type UpdateNextPaymentDateRequest struct {
	NextPaymentDate time.Time `json:"next_payment_date" binding:"required"`
}

// SubscriptionResponse is the API shape of a subscription.
type SubscriptionResponse struct {
	*subscription.Subscription
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
}

func NewSubscriptionResponse(sub *subscription.Subscription) *SubscriptionResponse {
	resp := &SubscriptionResponse{Subscription: sub}
	if next, err := sub.NextPaymentDate(time.Now().UTC()); err == nil && !next.IsZero() {
		resp.NextPaymentDate = &next
	}
	return resp
}

// ListSubscriptionsResponse wraps a customer's subscriptions.
type ListSubscriptionsResponse struct {
	Items []*SubscriptionResponse `json:"items"`
	Total int                     `json:"total"`
}

// UpdateStatusResponse reports whether the transition was applied.
type UpdateStatusResponse struct {
	Changed bool                     `json:"changed"`
	Status  types.SubscriptionStatus `json:"status"`
}

// SwitchQuoteRequest prices a plan switch without applying it.
type SwitchQuoteRequest struct {
	OrderID   string              `json:"order_id" binding:"required"`
	ProductID string              `json:"product_id" binding:"required"`
	NewPlan   proration.PlanTerms `json:"new_plan" binding:"required"`
}

// SwitchCompleteRequest finalizes a plan switch after checkout.
type SwitchCompleteRequest struct {
	OrderID      string              `json:"order_id" binding:"required"`
	ProductID    string              `json:"product_id" binding:"required"`
	NewOrderID   string              `json:"new_order_id" binding:"required"`
	NewProductID string              `json:"new_product_id" binding:"required"`
	NewPlan      proration.PlanTerms `json:"new_plan" binding:"required"`
}
