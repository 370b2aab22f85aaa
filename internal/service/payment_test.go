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

func TestRecordPaymentResetsCountersAndGeneratesRenewal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewPaymentService(env.params, NewStatusService(env.params), NewRenewalService(env.params))

	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	sub.FailedPayments = 2
	sub.SuspensionCount = 1
	require.NoError(t, env.subs.Save(ctx, sub))

	paidAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, svc.RecordPayment(ctx, key, paidAt, false))

	sub, err = env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.FailedPayments)
	assert.Equal(t, 0, sub.SuspensionCount)
	require.Len(t, sub.CompletedPayments, 2)
	assert.True(t, sub.CompletedPayments[1].Equal(paidAt))

	renewals, err := env.orders.ListRenewals(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, renewals, 1)
	assert.Equal(t, types.OrderRoleChild, renewals[0].Role)
	assert.Equal(t, types.OrderStatusCompleted, renewals[0].Status)
	assert.False(t, renewals[0].PendingPayment)
	assert.True(t, env.publisher.HasEvent(types.EventSubscriptionPaymentProcessed))
}

func TestRecordPaymentReactivatesOnHold(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewPaymentService(env.params, NewStatusService(env.params), NewRenewalService(env.params))
	env.setStatus(ctx, key, types.SubscriptionStatusOnHold)

	require.NoError(t, svc.RecordPayment(ctx, key, time.Now().UTC(), false))

	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.True(t, env.publisher.HasEvent(types.EventSubscriptionReactivated))
}

func TestRecordPaymentSkipsGeneratorWhenAlreadyGenerated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	svc := NewPaymentService(env.params, NewStatusService(env.params), NewRenewalService(env.params))

	require.NoError(t, svc.RecordPayment(ctx, key, time.Now().UTC(), true))

	renewals, err := env.orders.ListRenewals(ctx, "ord_1")
	require.NoError(t, err)
	assert.Empty(t, renewals)

	// An already-active subscription still gets its next payment-due event
	// refreshed.
	event, err := env.schedules.Get(ctx, schedule.HookPaymentDue, "cust_1", key)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, event.FireAt.After(time.Now().UTC()))
}

// Three consecutive failures with the default maximum of three walk the
// subscription from active through on hold to cancelled: failed child
// renewals for remediation along the way, then a parent renewal so the
// customer can re-purchase under current terms.
func TestRecordFailureReachingMaximumCancels(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	key := env.seedSubscription(ctx, "ord_1", "prod_1")
	statusSvc := NewStatusService(env.params)
	svc := NewPaymentService(env.params, statusSvc, NewRenewalService(env.params))

	require.NoError(t, svc.RecordFailure(ctx, key))
	sub, err := env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusOnHold, sub.Status)
	assert.Equal(t, 1, sub.FailedPayments)

	require.NoError(t, svc.RecordFailure(ctx, key))
	sub, err = env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusOnHold, sub.Status)
	assert.Equal(t, 2, sub.FailedPayments)

	require.NoError(t, svc.RecordFailure(ctx, key))
	sub, err = env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, sub.Status)
	assert.Equal(t, 3, sub.FailedPayments)

	renewals, err := env.orders.ListRenewals(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, renewals, 3)
	roles := map[types.OrderRole]int{}
	for _, r := range renewals {
		roles[r.Role]++
		if r.Role == types.OrderRoleChild {
			assert.Equal(t, types.OrderStatusFailed, r.Status)
		}
	}
	assert.Equal(t, 2, roles[types.OrderRoleChild])
	assert.Equal(t, 1, roles[types.OrderRoleParent])

	original, err := env.orders.Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.True(t, original.Superseded)

	// The counter only resets on the next successful payment.
	require.NoError(t, svc.RecordPayment(ctx, key, time.Now().UTC(), true))
	sub, err = env.subs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.FailedPayments)
}
