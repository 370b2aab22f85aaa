package schedule

import (
	"context"
	"time"

	"github.com/vidinfra/subflow/internal/types"
)

// Hook names for the engine's single-fire future actions.
const (
	HookPaymentDue       = "subscription.payment_due"
	HookTrialEnd         = "subscription.trial_end"
	HookExpiration       = "subscription.expiration"
	HookEndOfPrepaidTerm = "subscription.end_of_prepaid_term"
)

// Event is a named, timestamped, single-fire future action. At most one
// pending instance exists per (hook, owner, subscription key) triple.
type Event struct {
	ID      string                `db:"id" json:"id"`
	Hook    string                `db:"hook" json:"hook"`
	OwnerID string                `db:"owner_id" json:"owner_id"`
	Key     types.SubscriptionKey `json:"key"`
	FireAt  time.Time             `db:"fire_at" json:"fire_at"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Repository stores pending scheduled events for the external best-effort
// task runner to poll.
type Repository interface {
	// Upsert replaces any existing event for the same (hook, owner, key) triple.
	Upsert(ctx context.Context, event *Event) error
	// Delete cancels the pending event for the triple. Missing events are a no-op.
	Delete(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) error
	// Get returns the pending event for the triple, or nil.
	Get(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) (*Event, error)
	// ListDue returns up to limit events with FireAt <= now, oldest first.
	// Events stay stored until deleted: delivery is at-least-once.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Event, error)
}
