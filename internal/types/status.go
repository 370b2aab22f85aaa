package types

import (
	"github.com/samber/lo"

	ierr "github.com/vidinfra/subflow/internal/errors"
)

// SubscriptionStatus is the lifecycle status of a subscription.
// A subscription never holds a "deleted" status: deletion removes the
// underlying attributes entirely and is only reachable from trash.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusOnHold    SubscriptionStatus = "on_hold"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusSwitched  SubscriptionStatus = "switched"
	SubscriptionStatusTrash     SubscriptionStatus = "trash"
	SubscriptionStatusFailed    SubscriptionStatus = "failed"
)

var SubscriptionStatusValues = []SubscriptionStatus{
	SubscriptionStatusPending,
	SubscriptionStatusActive,
	SubscriptionStatusOnHold,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
	SubscriptionStatusSwitched,
	SubscriptionStatusTrash,
	SubscriptionStatusFailed,
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	if !lo.Contains(SubscriptionStatusValues, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": SubscriptionStatusValues,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports whether no further billing activity is expected.
func (s SubscriptionStatus) IsTerminal() bool {
	switch s {
	case SubscriptionStatusCancelled, SubscriptionStatusExpired,
		SubscriptionStatusSwitched, SubscriptionStatusTrash, SubscriptionStatusFailed:
		return true
	}
	return false
}

// IsBillable reports whether a scheduled payment delivery for a subscription
// in this status should be honored.
func (s SubscriptionStatus) IsBillable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPending
}

// OrderStatus mirrors the host platform's order statuses that drive
// subscription activation, suspension and cancellation.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusOnHold     OrderStatus = "on_hold"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
)

func (s OrderStatus) String() string {
	return string(s)
}

// OrderRole is the relationship of a renewal record to its originating order.
type OrderRole string

const (
	// OrderRoleChild supplements the original order, which stays authoritative.
	OrderRoleChild OrderRole = "child"
	// OrderRoleParent supersedes the original order as the new authority.
	OrderRoleParent OrderRole = "parent"
)

var OrderRoleValues = []OrderRole{OrderRoleChild, OrderRoleParent}

func (r OrderRole) String() string {
	return string(r)
}

func (r OrderRole) Validate() error {
	if !lo.Contains(OrderRoleValues, r) {
		return ierr.NewError("invalid renewal order role").
			WithHint("Renewal order role must be parent or child").
			WithReportableDetails(map[string]any{
				"role":           r,
				"allowed_values": OrderRoleValues,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
