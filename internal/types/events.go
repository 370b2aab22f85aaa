package types

import (
	"encoding/json"
	"time"
)

// LifecycleEvent is a named event raised by the engine for external
// collaborators (emails, reports, analytics). The payload is opaque.
type LifecycleEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// subscription lifecycle event names
const (
	EventSubscriptionCreated     = "subscription.created"
	EventSubscriptionActivated   = "subscription.activated"
	EventSubscriptionReactivated = "subscription.reactivated"
	EventSubscriptionOnHold      = "subscription.put_on_hold"
	EventSubscriptionCancelled   = "subscription.cancelled"
	EventSubscriptionExpired     = "subscription.expired"
	EventSubscriptionTrashed     = "subscription.trashed"
	EventSubscriptionDeleted     = "subscription.deleted"
	EventSubscriptionSwitched    = "subscription.switched"
	EventSubscriptionTrialEnded  = "subscription.trial_ended"
)

// payment event names
const (
	EventSubscriptionPaymentProcessed = "subscription.payment_processed"
	EventSubscriptionPaymentFailed    = "subscription.payment_failed"
	EventRenewalOrderCreated          = "subscription.renewal_order_created"
	EventPaymentDateChanged           = "subscription.payment_date_changed"
)

// refusal event names, raised instead of mutating state when a transition is
// not permitted
const (
	EventUnableToActivate   = "subscription.unable_to_activate"
	EventUnableToReactivate = "subscription.unable_to_reactivate"
	EventUnableToSuspend    = "subscription.unable_to_put_on_hold"
	EventUnableToCancel     = "subscription.unable_to_cancel"
	EventUnableToTrash      = "subscription.unable_to_trash"
	EventUnableToDelete     = "subscription.unable_to_delete"
	EventUnableToChangeDate = "subscription.unable_to_change_payment_date"
)

// host platform notification names consumed by the engine
const (
	HostEventOrderStatusChanged = "host.order_status_changed"
	HostEventCheckoutCompleted  = "host.checkout_completed"
	HostEventUserDeleted        = "host.user_deleted"
)
