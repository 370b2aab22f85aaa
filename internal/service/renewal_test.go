package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	"github.com/vidinfra/subflow/internal/types"
)

func TestGenerateChildRenewal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewRenewalService(env.params)

	src, err := env.orders.Get(ctx, "ord_1")
	require.NoError(t, err)
	src.PaymentMethod = "stripe"
	src.ShippingMethod = "flat_rate"
	src.Items[0].Meta[subscription.MetaTrialLength] = "7"
	src.TaxRows = []*order.TaxRow{
		{ID: "tax_1", OrderID: "ord_1", Label: "VAT", Amount: decimal.NewFromInt(4), Recurring: true},
		{ID: "tax_2", OrderID: "ord_1", Label: "One-off levy", Amount: decimal.NewFromInt(1)},
	}
	require.NoError(t, env.orders.Update(ctx, src))

	paidAt := time.Now().UTC().Truncate(time.Second)
	renewal, err := svc.Generate(ctx, key, types.OrderRoleChild, paidAt)
	require.NoError(t, err)

	assert.Equal(t, "ord_1", renewal.OriginalOrderID)
	assert.Equal(t, types.OrderRoleChild, renewal.Role)
	assert.Equal(t, types.OrderStatusPending, renewal.Status)
	assert.Equal(t, "cust_1", renewal.CustomerID)
	assert.True(t, renewal.Total.Equal(src.RecurringTotal))

	// Payment details carry over; recurring mirrors do not, so replaying the
	// record cannot double count.
	assert.Equal(t, "stripe", renewal.PaymentMethod)
	assert.Equal(t, "flat_rate", renewal.ShippingMethod)
	assert.True(t, renewal.RecurringTotal.IsZero())

	// Only recurring tax rows are copied, and only as plain rows.
	require.Len(t, renewal.TaxRows, 1)
	assert.Equal(t, "VAT", renewal.TaxRows[0].Label)
	assert.False(t, renewal.TaxRows[0].Recurring)

	// The line item re-homes per-period totals and carries no subscription
	// attributes of its own.
	require.Len(t, renewal.Items, 1)
	item := renewal.Items[0]
	assert.True(t, item.Total.Equal(src.Items[0].RecurringTotal))
	for k := range item.Meta {
		assert.NotContains(t, k, "_subscription_")
	}
	assert.NotContains(t, item.Meta, subscription.MetaTrialLength)

	assert.True(t, env.publisher.HasEvent(types.EventRenewalOrderCreated))
}

func TestGenerateParentRenewal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewRenewalService(env.params)

	src, err := env.orders.Get(ctx, "ord_1")
	require.NoError(t, err)
	src.PaymentMethod = "stripe"
	src.RecurringPaymentMethod = "stripe_token_abc"
	src.ShippingRows = []*order.ShippingRow{
		{ID: "ship_1", OrderID: "ord_1", Method: "flat_rate", Label: "Shipping", Amount: decimal.NewFromInt(5), Recurring: true},
	}
	require.NoError(t, env.orders.Update(ctx, src))

	renewal, err := svc.Generate(ctx, key, types.OrderRoleParent, time.Now().UTC())
	require.NoError(t, err)

	// The customer re-enters payment details; the stored token and recurring
	// mirrors stay so the new record renews on its own.
	assert.Empty(t, renewal.PaymentMethod)
	assert.Equal(t, "stripe_token_abc", renewal.RecurringPaymentMethod)
	assert.True(t, renewal.RecurringTotal.Equal(src.RecurringTotal))
	assert.True(t, renewal.PendingPayment)

	// Recurring shipping is copied twice: once for this charge, once as the
	// per-period row for future renewals.
	require.Len(t, renewal.ShippingRows, 2)
	assert.False(t, renewal.ShippingRows[0].Recurring)
	assert.True(t, renewal.ShippingRows[1].Recurring)

	// The line item keeps its subscription attributes.
	require.Len(t, renewal.Items, 1)
	assert.Contains(t, renewal.Items[0].Meta, subscription.MetaStatus)

	src, err = env.orders.Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.True(t, src.Superseded)
}

func TestGenerateCarriesOutstandingBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.params.Config.Billing.CarryOutstandingBalance = true
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewRenewalService(env.params)

	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	sub.FailedPayments = 2
	require.NoError(t, env.subs.Save(ctx, sub))

	renewal, err := svc.Generate(ctx, key, types.OrderRoleChild, time.Now().UTC())
	require.NoError(t, err)

	// 1 + 2 failed payments worth of the per-period total.
	assert.True(t, renewal.Total.Equal(decimal.NewFromInt(60)), "got %s", renewal.Total)
}

func TestGenerateIsIdempotentPerBillingInstant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewRenewalService(env.params)

	paidAt := time.Now().UTC().Truncate(time.Second)
	first, err := svc.Generate(ctx, key, types.OrderRoleChild, paidAt)
	require.NoError(t, err)
	second, err := svc.Generate(ctx, key, types.OrderRoleChild, paidAt)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	renewals, err := env.orders.ListRenewals(ctx, "ord_1")
	require.NoError(t, err)
	assert.Len(t, renewals, 1)
}

func TestGenerateResolvesOriginalFromChildKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewRenewalService(env.params)

	first, err := svc.Generate(ctx, key, types.OrderRoleChild, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	// Generating against the child's own id still attaches to ord_1.
	childKey := types.NewSubscriptionKey(first.ID, "prod_1")
	second, err := svc.Generate(ctx, childKey, types.OrderRoleChild, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "ord_1", second.OriginalOrderID)
}

func TestGenerateReusesPendingCheckoutOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewRenewalService(env.params)

	pending := &order.Order{
		ID:             "ord_pending",
		CustomerID:     "cust_1",
		Status:         types.OrderStatusPending,
		PendingPayment: true,
		Items: []*order.LineItem{
			{ID: "li_stale", OrderID: "ord_pending", ProductID: "prod_1", Name: "stale"},
		},
	}
	require.NoError(t, env.orders.Create(ctx, pending))

	ctx = types.SetPendingRenewalOrderID(ctx, "ord_pending")
	renewal, err := svc.Generate(ctx, key, types.OrderRoleChild, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, "ord_pending", renewal.ID)
	require.Len(t, renewal.Items, 1)
	assert.NotEqual(t, "li_stale", renewal.Items[0].ID)
}
