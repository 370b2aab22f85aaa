package scheduler

import (
	"context"
	"time"

	"github.com/vidinfra/subflow/internal/cache"
	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/types"
)

// fallbackLockWindow bounds the blast radius of a corrupted schedule when a
// subscription has no computable future payment.
const fallbackLockWindow = 23 * time.Hour

// lockLeadTime is how long before the next legitimate billing timestamp the
// lock is allowed to expire.
const lockLeadTime = time.Hour

// Guard converts the runner's "fire at least once, possibly many times,
// possibly late" delivery into billing side effects applied at most once per
// billing period. Every payment-due delivery must pass through Allow before
// any billing logic executes.
type Guard struct {
	cache      cache.Cache
	subs       *subscription.Store
	dispatcher *Dispatcher
	log        *logger.Logger
}

func NewGuard(c cache.Cache, subs *subscription.Store, dispatcher *Dispatcher, log *logger.Logger) *Guard {
	return &Guard{cache: c, subs: subs, dispatcher: dispatcher, log: log}
}

// Allow decides whether a payment-due delivery for (ownerID, key) may
// proceed. When it refuses it also self-heals: the redundant schedule is
// cancelled and the legitimate next payment date is recomputed and re-stored,
// so a stale delivery leaves the subscription correctly scheduled rather than
// unscheduled.
func (g *Guard) Allow(ctx context.Context, ownerID string, key types.SubscriptionKey, now time.Time) (bool, error) {
	lockKey := cache.GenerateKey(cache.PrefixBillingLock, ownerID, key.String())

	if raw, found := g.cache.Get(ctx, lockKey); found {
		if unlockAfter, ok := raw.(time.Time); ok && now.Before(unlockAfter) {
			g.log.Infow("suppressing duplicate payment delivery",
				"owner_id", ownerID,
				"subscription", key.String(),
				"unlock_after", unlockAfter,
			)
			return false, g.selfHeal(ctx, ownerID, key, now)
		}
	}

	sub, err := g.subs.Get(ctx, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			// Nothing to bill; drop the orphaned schedule.
			return false, g.dispatcher.Cancel(ctx, schedule.HookPaymentDue, ownerID, key)
		}
		return false, err
	}

	if !sub.Status.IsBillable() {
		g.log.Infow("suppressing payment delivery for non-billable subscription",
			"owner_id", ownerID,
			"subscription", key.String(),
			"status", sub.Status,
		)
		return false, g.selfHeal(ctx, ownerID, key, now)
	}

	next, err := sub.NextPaymentDate(now)
	if err != nil {
		return false, err
	}

	unlockAfter := now.Add(fallbackLockWindow)
	if !next.IsZero() && next.Sub(now) > lockLeadTime {
		unlockAfter = next.Add(-lockLeadTime)
	}
	g.cache.Set(ctx, lockKey, unlockAfter, unlockAfter.Sub(now))

	if !next.IsZero() {
		if err := g.dispatcher.Schedule(ctx, schedule.HookPaymentDue, ownerID, key, next); err != nil {
			return false, err
		}
	}

	return true, nil
}

// Release drops the lock for the pair, allowing the next legitimate delivery
// immediately. Used by tests and by manual remediation paths.
func (g *Guard) Release(ctx context.Context, ownerID string, key types.SubscriptionKey) {
	g.cache.Delete(ctx, cache.GenerateKey(cache.PrefixBillingLock, ownerID, key.String()))
}

// selfHeal cancels the redundant payment-due schedule and, when the
// subscription still has a legitimate future payment, re-schedules it.
func (g *Guard) selfHeal(ctx context.Context, ownerID string, key types.SubscriptionKey, now time.Time) error {
	if err := g.dispatcher.Cancel(ctx, schedule.HookPaymentDue, ownerID, key); err != nil {
		return err
	}

	sub, err := g.subs.Get(ctx, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}

	next, err := sub.NextPaymentDate(now)
	if err != nil || next.IsZero() {
		return err
	}
	return g.dispatcher.Schedule(ctx, schedule.HookPaymentDue, ownerID, key, next)
}
