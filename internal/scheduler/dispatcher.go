package scheduler

import (
	"context"
	"time"

	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/types"
)

// Dispatcher schedules, cancels and inspects single-fire future events.
// Execution is left to the Runner, which polls the underlying store with
// at-least-once, best-effort semantics.
type Dispatcher struct {
	repo schedule.Repository
	log  *logger.Logger
}

func NewDispatcher(repo schedule.Repository, log *logger.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, log: log}
}

// Schedule replaces any existing schedule for the same (hook, owner, key)
// triple with a new fire timestamp.
func (d *Dispatcher) Schedule(ctx context.Context, hook, ownerID string, key types.SubscriptionKey, at time.Time) error {
	if err := key.Validate(); err != nil {
		return err
	}
	event := &schedule.Event{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SCHEDULED_EVENT),
		Hook:      hook,
		OwnerID:   ownerID,
		Key:       key,
		FireAt:    at.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.repo.Upsert(ctx, event); err != nil {
		return err
	}
	d.log.Debugw("scheduled event",
		"hook", hook,
		"owner_id", ownerID,
		"subscription", key.String(),
		"fire_at", event.FireAt,
	)
	return nil
}

// Cancel removes the pending schedule for the triple, if any.
func (d *Dispatcher) Cancel(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) error {
	if err := d.repo.Delete(ctx, hook, ownerID, key); err != nil {
		return err
	}
	d.log.Debugw("cancelled scheduled event",
		"hook", hook,
		"owner_id", ownerID,
		"subscription", key.String(),
	)
	return nil
}

// Next returns the pending fire timestamp for the triple, or the zero time
// when nothing is scheduled.
func (d *Dispatcher) Next(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) (time.Time, error) {
	event, err := d.repo.Get(ctx, hook, ownerID, key)
	if err != nil {
		return time.Time{}, err
	}
	if event == nil {
		return time.Time{}, nil
	}
	return event.FireAt, nil
}
