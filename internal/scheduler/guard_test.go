package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidinfra/subflow/internal/cache"
	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/testutil"
	"github.com/vidinfra/subflow/internal/types"
)

type guardEnv struct {
	guard      *Guard
	dispatcher *Dispatcher
	orders     *testutil.InMemoryOrderStore
	subs       *subscription.Store
	schedules  *testutil.InMemoryScheduleStore
}

func newGuardEnv() *guardEnv {
	log, _ := logger.NewLogger("error")
	orders := testutil.NewInMemoryOrderStore()
	schedules := testutil.NewInMemoryScheduleStore()
	subs := subscription.NewStore(orders)
	dispatcher := NewDispatcher(schedules, log)
	return &guardEnv{
		guard:      NewGuard(cache.NewInMemoryCache(), subs, dispatcher, log),
		dispatcher: dispatcher,
		orders:     orders,
		subs:       subs,
		schedules:  schedules,
	}
}

// seedMonthly stores an active monthly subscription whose next payment is
// about twenty days out.
func (e *guardEnv) seedMonthly(ctx context.Context, orderID, productID string) types.SubscriptionKey {
	key := types.NewSubscriptionKey(orderID, productID)
	now := time.Now().UTC()
	sub := &subscription.Subscription{
		Key:               key,
		Status:            types.SubscriptionStatusActive,
		Period:            types.BillingPeriodMonth,
		Interval:          1,
		StartDate:         now.AddDate(0, -1, 0),
		CompletedPayments: []time.Time{now.AddDate(0, 0, -10)},
	}
	item := &order.LineItem{
		ID:        types.GenerateUUID(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  1,
		Total:     decimal.NewFromInt(20),
		Meta:      make(map[string]string),
	}
	subscription.EncodeMeta(sub, item.Meta)
	o := &order.Order{
		ID:         orderID,
		CustomerID: "cust_1",
		Status:     types.OrderStatusCompleted,
		Items:      []*order.LineItem{item},
	}
	if err := e.orders.Create(ctx, o); err != nil {
		panic(err)
	}
	return key
}

func TestGuardAllowsOncePerWindow(t *testing.T) {
	ctx := context.Background()
	env := newGuardEnv()
	key := env.seedMonthly(ctx, "ord_1", "prod_1")
	now := time.Now().UTC()

	ok, err := env.guard.Allow(ctx, "cust_1", key, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.guard.Allow(ctx, "cust_1", key, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

// A suppressed duplicate must leave the legitimate next payment scheduled
// rather than silently dropping it.
func TestGuardSelfHealsOnSuppression(t *testing.T) {
	ctx := context.Background()
	env := newGuardEnv()
	key := env.seedMonthly(ctx, "ord_1", "prod_1")
	now := time.Now().UTC()

	ok, err := env.guard.Allow(ctx, "cust_1", key, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate a redundant schedule landing after the first delivery.
	require.NoError(t, env.dispatcher.Schedule(ctx, schedule.HookPaymentDue, "cust_1", key, now))

	ok, err = env.guard.Allow(ctx, "cust_1", key, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, ok)

	next, err := env.dispatcher.Next(ctx, schedule.HookPaymentDue, "cust_1", key)
	require.NoError(t, err)
	assert.False(t, next.IsZero())
	assert.True(t, next.After(now.AddDate(0, 0, 15)), "got %s", next)
}

func TestGuardUnlocksBeforeNextPayment(t *testing.T) {
	ctx := context.Background()
	env := newGuardEnv()
	key := env.seedMonthly(ctx, "ord_1", "prod_1")
	now := time.Now().UTC()

	ok, err := env.guard.Allow(ctx, "cust_1", key, now)
	require.NoError(t, err)
	require.True(t, ok)

	// One hour before the next payment the lock has expired.
	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	next, err := sub.NextPaymentDate(now)
	require.NoError(t, err)

	ok, err = env.guard.Allow(ctx, "cust_1", key, next.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardReleaseDropsTheLock(t *testing.T) {
	ctx := context.Background()
	env := newGuardEnv()
	key := env.seedMonthly(ctx, "ord_1", "prod_1")
	now := time.Now().UTC()

	ok, err := env.guard.Allow(ctx, "cust_1", key, now)
	require.NoError(t, err)
	require.True(t, ok)

	env.guard.Release(ctx, "cust_1", key)

	ok, err = env.guard.Allow(ctx, "cust_1", key, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardSuppressesNonBillable(t *testing.T) {
	ctx := context.Background()
	env := newGuardEnv()
	key := env.seedMonthly(ctx, "ord_1", "prod_1")

	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	sub.Status = types.SubscriptionStatusCancelled
	require.NoError(t, env.subs.Save(ctx, sub))

	now := time.Now().UTC()
	require.NoError(t, env.dispatcher.Schedule(ctx, schedule.HookPaymentDue, "cust_1", key, now))

	ok, err := env.guard.Allow(ctx, "cust_1", key, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// The orphaned schedule is gone and nothing replaced it.
	next, err := env.dispatcher.Next(ctx, schedule.HookPaymentDue, "cust_1", key)
	require.NoError(t, err)
	assert.True(t, next.IsZero())
}

func TestGuardCancelsOrphanedSchedule(t *testing.T) {
	ctx := context.Background()
	env := newGuardEnv()
	key := types.NewSubscriptionKey("ord_gone", "prod_1")
	now := time.Now().UTC()

	require.NoError(t, env.dispatcher.Schedule(ctx, schedule.HookPaymentDue, "cust_1", key, now))

	ok, err := env.guard.Allow(ctx, "cust_1", key, now)
	require.NoError(t, err)
	assert.False(t, ok)

	next, err := env.dispatcher.Next(ctx, schedule.HookPaymentDue, "cust_1", key)
	require.NoError(t, err)
	assert.True(t, next.IsZero())
}

func TestGuardFallbackWindowWithoutNextPayment(t *testing.T) {
	ctx := context.Background()
	env := newGuardEnv()
	key := env.seedMonthly(ctx, "ord_1", "prod_1")

	// Billable, but bounded and fully paid: no computable next payment.
	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	sub.Length = 1
	require.NoError(t, env.subs.Save(ctx, sub))

	now := time.Now().UTC()
	ok, err := env.guard.Allow(ctx, "cust_1", key, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Locked for the fallback window, not forever.
	ok, err = env.guard.Allow(ctx, "cust_1", key, now.Add(22*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.guard.Allow(ctx, "cust_1", key, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}
