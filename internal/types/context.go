package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxUserID    ContextKey = "ctx_user_id"
	// CtxPendingRenewalOrderID marks an interactive checkout flow that has
	// already created a pending renewal order in the current session.
	CtxPendingRenewalOrderID ContextKey = "ctx_pending_renewal_order_id"
)

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

// GetPendingRenewalOrderID returns the pending-payment renewal order recorded
// in the current checkout session, if any.
func GetPendingRenewalOrderID(ctx context.Context) string {
	if orderID, ok := ctx.Value(CtxPendingRenewalOrderID).(string); ok {
		return orderID
	}
	return ""
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

func SetPendingRenewalOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, CtxPendingRenewalOrderID, orderID)
}
