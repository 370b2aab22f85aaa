package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// seedPlainOrder stores an order whose line item carries no subscription
// attributes yet.
func seedPlainOrder(ctx context.Context, env *testEnv, orderID, productID string) {
	o := &order.Order{
		ID:         orderID,
		CustomerID: "cust_1",
		Status:     types.OrderStatusPending,
		Currency:   "USD",
		Total:      decimal.NewFromInt(20),
		Items: []*order.LineItem{{
			ID:        types.GenerateUUID(),
			OrderID:   orderID,
			ProductID: productID,
			Name:      "Monthly plan",
			Quantity:  1,
			Subtotal:  decimal.NewFromInt(20),
			Total:     decimal.NewFromInt(20),
			Meta:      make(map[string]string),
		}},
	}
	if err := env.orders.Create(ctx, o); err != nil {
		panic(err)
	}
}

func TestCreatePending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := NewSubscriptionService(env.params)
	seedPlainOrder(ctx, env, "ord_new", "prod_1")

	key := types.NewSubscriptionKey("ord_new", "prod_1")
	sub, err := svc.CreatePending(ctx, key, &SubscriptionTerms{
		Period:      types.BillingPeriodMonth,
		Interval:    1,
		Length:      12,
		TrialLength: 1,
		SignUpFee:   decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	assert.Equal(t, types.SubscriptionStatusPending, sub.Status)
	// The trial end is one clamped billing cycle out, not a calendar month.
	wantTrialEnd, err := types.NextBillingDate(sub.StartDate, 1, types.BillingPeriodMonth)
	require.NoError(t, err)
	assert.True(t, sub.TrialEndDate.Equal(wantTrialEnd), "got %s", sub.TrialEndDate)
	// Bounded at 12 cycles from the trial end.
	assert.WithinDuration(t, sub.TrialEndDate.AddDate(1, 0, 0), sub.ExpiryDate, 72*time.Hour)

	// The cart-facing attributes land on the line item for later switches.
	o, err := env.orders.Get(ctx, "ord_new")
	require.NoError(t, err)
	item := o.Item("prod_1")
	assert.Equal(t, "5", item.Meta[subscription.MetaSignUpFee])
	assert.Equal(t, "1", item.Meta[subscription.MetaTrialLength])
	assert.Equal(t, types.SubscriptionStatusPending.String(), item.Meta[subscription.MetaStatus])

	assert.True(t, env.publisher.HasEvent(types.EventSubscriptionCreated))
}

func TestCreatePendingDayTrialOnMonthlyPlan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := NewSubscriptionService(env.params)
	seedPlainOrder(ctx, env, "ord_new", "prod_1")

	key := types.NewSubscriptionKey("ord_new", "prod_1")
	sub, err := svc.CreatePending(ctx, key, &SubscriptionTerms{
		Period:      types.BillingPeriodMonth,
		Interval:    1,
		TrialLength: 14,
		TrialPeriod: types.BillingPeriodDay,
		SignUpFee:   decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	// The trial runs 14 days, not 14 billing periods.
	want, err := types.NextBillingDate(sub.StartDate, 14, types.BillingPeriodDay)
	require.NoError(t, err)
	assert.True(t, sub.TrialEndDate.Equal(want), "got %s", sub.TrialEndDate)
}

func TestCreatePendingRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := NewSubscriptionService(env.params)
	key := env.seedSubscription(ctx, "ord_1", "prod_1")

	_, err := svc.CreatePending(ctx, key, &SubscriptionTerms{Period: types.BillingPeriodMonth, Interval: 1})
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
}

func TestCreatePendingRejectsBadTerms(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := NewSubscriptionService(env.params)
	seedPlainOrder(ctx, env, "ord_new", "prod_1")
	key := types.NewSubscriptionKey("ord_new", "prod_1")

	_, err := svc.CreatePending(ctx, key, nil)
	require.Error(t, err)

	_, err = svc.CreatePending(ctx, key, &SubscriptionTerms{Period: "fortnight", Interval: 1})
	require.Error(t, err)

	_, err = svc.CreatePending(ctx, key, &SubscriptionTerms{Period: types.BillingPeriodMonth, Interval: 0})
	require.Error(t, err)

	_, err = svc.CreatePending(ctx, key, &SubscriptionTerms{
		Period: types.BillingPeriodMonth, Interval: 1, TrialLength: 7, TrialPeriod: "fortnight",
	})
	require.Error(t, err)
}

func TestUpdateNextPaymentDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := NewSubscriptionService(env.params)
	key := env.seedSubscription(ctx, "ord_1", "prod_1")

	newDate := time.Now().UTC().AddDate(0, 2, 0)
	require.NoError(t, svc.UpdateNextPaymentDate(ctx, key, newDate))

	event, err := env.schedules.Get(ctx, schedule.HookPaymentDue, "cust_1", key)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, event.FireAt.Equal(newDate))
	assert.True(t, env.publisher.HasEvent(types.EventPaymentDateChanged))
}

func TestUpdateNextPaymentDateRefusals(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		mutate  func(sub *subscription.Subscription)
		newDate time.Time
	}{
		{
			name:    "date in the past",
			mutate:  func(sub *subscription.Subscription) {},
			newDate: now.AddDate(0, 0, -1),
		},
		{
			name: "no future payment",
			mutate: func(sub *subscription.Subscription) {
				sub.Length = 1
			},
			newDate: now.AddDate(0, 1, 0),
		},
		{
			name: "inside the trial",
			mutate: func(sub *subscription.Subscription) {
				sub.TrialEndDate = now.AddDate(0, 0, 20)
			},
			newDate: now.AddDate(0, 0, 10),
		},
		{
			name: "on or after expiry",
			mutate: func(sub *subscription.Subscription) {
				sub.ExpiryDate = now.AddDate(0, 1, 0)
			},
			newDate: now.AddDate(0, 2, 0),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv()
			svc := NewSubscriptionService(env.params)
			key := env.seedSubscription(ctx, "ord_1", "prod_1")

			sub, err := env.subs.Get(ctx, key)
			require.NoError(t, err)
			tc.mutate(sub)
			require.NoError(t, env.subs.Save(ctx, sub))

			err = svc.UpdateNextPaymentDate(ctx, key, tc.newDate)
			require.Error(t, err)
			assert.True(t, env.publisher.HasEvent(types.EventUnableToChangeDate))

			event, gerr := env.schedules.Get(ctx, schedule.HookPaymentDue, "cust_1", key)
			require.NoError(t, gerr)
			assert.Nil(t, event)
		})
	}
}

func TestUpdateNextPaymentDateRequiresGatewaySupport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := NewSubscriptionService(env.params)
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	env.useGateway(ctx, "ord_1", &stubGateway{name: "legacy"})

	err := svc.UpdateNextPaymentDate(ctx, key, time.Now().UTC().AddDate(0, 2, 0))
	require.Error(t, err)
	assert.True(t, env.publisher.HasEvent(types.EventUnableToChangeDate))
}
