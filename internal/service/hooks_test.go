package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/types"
)

func newHookService(env *testEnv) *HookService {
	status := NewStatusService(env.params)
	renewal := NewRenewalService(env.params)
	payment := NewPaymentService(env.params, status, renewal)
	return NewHookService(env.params, status, payment, renewal)
}

func paymentDueEvent(key types.SubscriptionKey, fireAt time.Time) *schedule.Event {
	return &schedule.Event{
		Hook:    schedule.HookPaymentDue,
		OwnerID: "cust_1",
		Key:     key,
		FireAt:  fireAt,
	}
}

func TestHandlePaymentDueManualRenewal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := newHookService(env)

	require.NoError(t, svc.HandlePaymentDue(ctx, paymentDueEvent(key, time.Now().UTC())))

	// Without a gateway the service suspends and waits for a manual payment
	// against the pending record.
	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusOnHold, sub.Status)

	renewals, err := env.orders.ListRenewals(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, renewals, 1)
	assert.True(t, renewals[0].PendingPayment)
	assert.Equal(t, types.OrderStatusPending, renewals[0].Status)
}

func TestHandlePaymentDueGatewayKeepsActive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	env.useGateway(ctx, "ord_1", &stubGateway{name: "stripe", scheduledPayments: true})
	svc := newHookService(env)

	require.NoError(t, svc.HandlePaymentDue(ctx, paymentDueEvent(key, time.Now().UTC())))

	// The gateway charges the pending record and reports back later; the
	// subscription is not suspended in the meantime.
	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)

	renewals, err := env.orders.ListRenewals(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, renewals, 1)
	assert.True(t, renewals[0].PendingPayment)
}

func TestHandlePaymentDueSuppressesDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	env.useGateway(ctx, "ord_1", &stubGateway{name: "stripe", scheduledPayments: true})
	svc := newHookService(env)

	event := paymentDueEvent(key, time.Now().UTC())
	require.NoError(t, svc.HandlePaymentDue(ctx, event))
	require.NoError(t, svc.HandlePaymentDue(ctx, event))

	renewals, err := env.orders.ListRenewals(ctx, "ord_1")
	require.NoError(t, err)
	assert.Len(t, renewals, 1)

	// The suppressed delivery still leaves the next payment scheduled.
	stored, err := env.schedules.Get(ctx, schedule.HookPaymentDue, "cust_1", key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.FireAt.After(time.Now().UTC()))
}

func TestHandleTrialEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := newHookService(env)
	event := &schedule.Event{Hook: schedule.HookTrialEnd, OwnerID: "cust_1", Key: key, FireAt: time.Now().UTC()}

	// A trial pushed into the future after scheduling is a stale delivery.
	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	sub.TrialEndDate = time.Now().UTC().AddDate(0, 0, 10)
	require.NoError(t, env.subs.Save(ctx, sub))

	require.NoError(t, svc.HandleTrialEnd(ctx, event))
	assert.False(t, env.publisher.HasEvent(types.EventSubscriptionTrialEnded))

	sub.TrialEndDate = time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, env.subs.Save(ctx, sub))

	require.NoError(t, svc.HandleTrialEnd(ctx, event))
	assert.True(t, env.publisher.HasEvent(types.EventSubscriptionTrialEnded))
}

func TestHandleExpiration(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := newHookService(env)
	event := &schedule.Event{Hook: schedule.HookExpiration, OwnerID: "cust_1", Key: key, FireAt: time.Now().UTC()}

	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	sub.ExpiryDate = time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, env.subs.Save(ctx, sub))

	require.NoError(t, svc.HandleExpiration(ctx, event))

	sub, err = env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusExpired, sub.Status)
}

func TestHandleEndOfPrepaidTerm(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := newHookService(env)
	event := &schedule.Event{Hook: schedule.HookEndOfPrepaidTerm, OwnerID: "cust_1", Key: key, FireAt: time.Now().UTC()}

	// Only cancelled subscriptions with an open end date are affected.
	require.NoError(t, svc.HandleEndOfPrepaidTerm(ctx, event))
	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, sub.EndDate.IsZero())

	env.setStatus(ctx, key, types.SubscriptionStatusCancelled)
	require.NoError(t, svc.HandleEndOfPrepaidTerm(ctx, event))

	sub, err = env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, sub.EndDate.IsZero())
}
