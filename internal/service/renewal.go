package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// RenewalService generates renewal records: new orders carrying the recurring
// portion of an original subscription order, linked back to it.
type RenewalService interface {
	// Generate creates exactly one renewal record for the given subscription
	// and billing instant. A second call for the same (original order,
	// payment timestamp) pair returns the already-generated record.
	Generate(ctx context.Context, key types.SubscriptionKey, role types.OrderRole, paidAt time.Time) (*order.Order, error)
}

type renewalService struct {
	ServiceParams
}

func NewRenewalService(params ServiceParams) RenewalService {
	return &renewalService{ServiceParams: params}
}

func (s *renewalService) Generate(ctx context.Context, key types.SubscriptionKey, role types.OrderRole, paidAt time.Time) (*order.Order, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}

	src, err := s.OrderRepo.Get(ctx, key.OrderID)
	if err != nil {
		return nil, err
	}

	// A child renewal passed in by mistake resolves to the true original so
	// history stays attached to one subscription identity.
	if src.OriginalOrderID != "" {
		src, err = s.OrderRepo.Get(ctx, src.OriginalOrderID)
		if err != nil {
			return nil, err
		}
		key = types.SubscriptionKey{OrderID: src.ID, ProductID: key.ProductID}
	}

	item := src.Item(key.ProductID)
	if item == nil {
		return nil, ierr.NewError("order does not contain the subscription product").
			WithHintf("order %s has no line item for product %s", src.ID, key.ProductID).
			Mark(ierr.ErrValidation)
	}
	sub, err := subscription.DecodeMeta(key, item.Meta)
	if err != nil {
		return nil, err
	}

	paidAt = paidAt.UTC()
	if existing, err := s.OrderRepo.FindRenewalByPaymentTimestamp(ctx, src.ID, paidAt); err != nil {
		return nil, err
	} else if existing != nil {
		s.Logger.Infow("renewal record already exists for billing instant",
			"subscription", key.String(),
			"renewal_order_id", existing.ID,
			"payment_timestamp", paidAt,
		)
		return existing, nil
	}

	renewal, existing, err := s.renewalShell(ctx)
	if err != nil {
		return nil, err
	}

	s.copyOrderAttributes(renewal, src, role, sub)
	renewal.PaymentTimestamp = &paidAt
	s.copyRows(renewal, src, role)
	s.copyLineItems(renewal, src, role)

	if existing {
		err = s.OrderRepo.Update(ctx, renewal)
	} else {
		err = s.OrderRepo.Create(ctx, renewal)
	}
	if err != nil {
		return nil, err
	}

	if role == types.OrderRoleParent {
		// The new record carries the subscription's terms from here on; the
		// old order stays only as history.
		src.Superseded = true
		if err := s.OrderRepo.Update(ctx, src); err != nil {
			return nil, err
		}
		renewal.PendingPayment = true
		if err := s.OrderRepo.Update(ctx, renewal); err != nil {
			return nil, err
		}
	}

	s.addOrderNote(ctx, src.ID, fmt.Sprintf("Renewal order %s created for subscription %s.", renewal.ID, key))
	if err := s.EventPublisher.Publish(ctx, types.EventRenewalOrderCreated, renewal); err != nil {
		s.Logger.Warnw("failed to publish renewal created event", "renewal_order_id", renewal.ID, "error", err)
	}

	s.Logger.Infow("generated renewal record",
		"subscription", key.String(),
		"renewal_order_id", renewal.ID,
		"role", role,
		"total", renewal.Total,
	)
	return renewal, nil
}

// renewalShell returns the order the renewal is written onto. An interactive
// checkout flow marks its pending order on the context; reusing it avoids
// stacking duplicate pending orders while the customer retries payment.
func (s *renewalService) renewalShell(ctx context.Context) (*order.Order, bool, error) {
	if pendingID := types.GetPendingRenewalOrderID(ctx); pendingID != "" {
		pending, err := s.OrderRepo.Get(ctx, pendingID)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, false, err
		}
		if pending != nil && pending.PendingPayment {
			pending.Items = nil
			pending.TaxRows = nil
			pending.ShippingRows = nil
			pending.FeeRows = nil
			return pending, true, nil
		}
	}
	now := time.Now().UTC()
	return &order.Order{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RENEWAL_ORDER),
		CreatedAt: now,
		UpdatedAt: now,
	}, false, nil
}

// outstandingBalanceMultiplier inflates renewal totals to recover unpaid
// failed-payment amounts when the store is configured to carry them forward.
func (s *renewalService) outstandingBalanceMultiplier(sub *subscription.Subscription) decimal.Decimal {
	if !s.Config.Billing.CarryOutstandingBalance || sub.FailedPayments == 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(1 + sub.FailedPayments))
}

func (s *renewalService) copyOrderAttributes(dst, src *order.Order, role types.OrderRole, sub *subscription.Subscription) {
	multiplier := s.outstandingBalanceMultiplier(sub)

	dst.CustomerID = src.CustomerID
	dst.Status = types.OrderStatusPending
	dst.Currency = src.Currency
	dst.OriginalOrderID = src.ID
	dst.Role = role
	dst.UpdatedAt = time.Now().UTC()

	dst.Total = src.RecurringTotal.Mul(multiplier)
	dst.DiscountTotal = src.RecurringDiscountTotal.Mul(multiplier)
	dst.TaxTotal = src.RecurringTaxTotal.Mul(multiplier)
	dst.ShippingTotal = src.RecurringShippingTotal.Mul(multiplier)

	switch role {
	case types.OrderRoleParent:
		// The customer re-enters payment details against the new record;
		// recurring mirrors stay so the record is independently renewable.
		dst.RecurringTotal = src.RecurringTotal
		dst.RecurringDiscountTotal = src.RecurringDiscountTotal
		dst.RecurringTaxTotal = src.RecurringTaxTotal
		dst.RecurringShippingTotal = src.RecurringShippingTotal
		dst.RecurringPaymentMethod = src.RecurringPaymentMethod
	case types.OrderRoleChild:
		// Recurring mirrors are dropped so replaying the child record cannot
		// double count.
		dst.PaymentMethod = src.PaymentMethod
		dst.ShippingMethod = src.ShippingMethod
	}
}

// copyRows duplicates recurring tax and shipping rows as first-class rows on
// the renewal. Parent records get both a plain and a recurring copy.
func (s *renewalService) copyRows(dst, src *order.Order, role types.OrderRole) {
	for _, row := range src.TaxRows {
		if !row.Recurring {
			continue
		}
		dst.TaxRows = append(dst.TaxRows, &order.TaxRow{
			ID:      types.GenerateUUID(),
			OrderID: dst.ID,
			Label:   row.Label,
			Amount:  row.Amount,
		})
		if role == types.OrderRoleParent {
			dst.TaxRows = append(dst.TaxRows, &order.TaxRow{
				ID:        types.GenerateUUID(),
				OrderID:   dst.ID,
				Label:     row.Label,
				Amount:    row.Amount,
				Recurring: true,
			})
		}
	}
	for _, row := range src.ShippingRows {
		if !row.Recurring {
			continue
		}
		dst.ShippingRows = append(dst.ShippingRows, &order.ShippingRow{
			ID:      types.GenerateUUID(),
			OrderID: dst.ID,
			Method:  row.Method,
			Label:   row.Label,
			Amount:  row.Amount,
		})
		if role == types.OrderRoleParent {
			dst.ShippingRows = append(dst.ShippingRows, &order.ShippingRow{
				ID:        types.GenerateUUID(),
				OrderID:   dst.ID,
				Method:    row.Method,
				Label:     row.Label,
				Amount:    row.Amount,
				Recurring: true,
			})
		}
	}
}

// copyLineItems re-homes each recurring line item's per-period totals onto
// plain totals on the renewal. No renewal ever carries a free trial, so the
// trial-length attribute is never duplicated.
func (s *renewalService) copyLineItems(dst, src *order.Order, role types.OrderRole) {
	for _, item := range src.Items {
		if item.RecurringTotal.IsZero() && item.RecurringSubtotal.IsZero() {
			continue
		}

		meta := make(map[string]string, len(item.Meta))
		for k, v := range item.Meta {
			meta[k] = v
		}
		delete(meta, subscription.MetaTrialLength)
		if role == types.OrderRoleChild {
			subscription.StripMeta(meta)
		}

		dst.Items = append(dst.Items, &order.LineItem{
			ID:        types.GenerateUUID(),
			OrderID:   dst.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Subtotal:  item.RecurringSubtotal,
			Total:     item.RecurringTotal,
			Tax:       item.RecurringTax,
			Meta:      meta,
		})
	}
}
