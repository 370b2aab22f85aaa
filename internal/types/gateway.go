package types

// Gateway is the minimal surface the engine needs from a payment gateway.
// Charging is external: the engine only consults capabilities and reacts to
// payment processed / payment failed signals supplied by gateway code.
type Gateway interface {
	Name() string
}

// Optional capability interfaces. Gateways declare a capability by
// implementing the corresponding interface; the engine discovers them via
// type assertion instead of string-keyed feature arrays.

type SupportsCancellation interface {
	SupportsCancellation() bool
}

type SupportsSuspension interface {
	SupportsSuspension() bool
}

type SupportsReactivation interface {
	SupportsReactivation() bool
}

type SupportsDateChanges interface {
	SupportsDateChanges() bool
}

type SupportsScheduledPayments interface {
	SupportsScheduledPayments() bool
}

// GatewayCanCancel reports whether the gateway declares cancellation support.
// A nil gateway means manual payments, which always support everything.
func GatewayCanCancel(g Gateway) bool {
	if g == nil {
		return true
	}
	c, ok := g.(SupportsCancellation)
	return ok && c.SupportsCancellation()
}

func GatewayCanSuspend(g Gateway) bool {
	if g == nil {
		return true
	}
	c, ok := g.(SupportsSuspension)
	return ok && c.SupportsSuspension()
}

func GatewayCanReactivate(g Gateway) bool {
	if g == nil {
		return true
	}
	c, ok := g.(SupportsReactivation)
	return ok && c.SupportsReactivation()
}

func GatewayCanChangeDates(g Gateway) bool {
	if g == nil {
		return true
	}
	c, ok := g.(SupportsDateChanges)
	return ok && c.SupportsDateChanges()
}

func GatewayCanSchedulePayments(g Gateway) bool {
	if g == nil {
		return false
	}
	c, ok := g.(SupportsScheduledPayments)
	return ok && c.SupportsScheduledPayments()
}
