package proration

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vidinfra/subflow/internal/types"
)

// SignUpFeeProration controls how the new plan's sign-up fee is apportioned
// when a customer switches plans.
type SignUpFeeProration string

const (
	// SignUpFeeProrationNone charges no sign-up fee on a switch.
	SignUpFeeProrationNone SignUpFeeProration = "none"
	// SignUpFeeProrationFull charges the new plan's full sign-up fee.
	SignUpFeeProrationFull SignUpFeeProration = "full"
	// SignUpFeeProrationDifference charges the new fee minus what was already
	// paid on the original plan, never below zero.
	SignUpFeeProrationDifference SignUpFeeProration = "difference"
)

// SwitchType classifies a plan switch by per-day cost.
type SwitchType string

const (
	SwitchTypeUpgrade    SwitchType = "upgrade"
	SwitchTypeDowngrade  SwitchType = "downgrade"
	SwitchTypeCrossgrade SwitchType = "crossgrade"
)

// PlanTerms describes one plan's recurring terms as seen by the calculator.
type PlanTerms struct {
	PricePerPeriod decimal.Decimal
	Period         types.BillingPeriod
	Interval       int
	SignUpFee      decimal.Decimal
	// Length is the plan's total billing periods, 0 = unlimited.
	Length int
}

// SwitchParams are the inputs for prorating a mid-cycle plan switch.
type SwitchParams struct {
	OldPlan PlanTerms
	NewPlan PlanTerms

	// LastPaymentAt and NextPaymentAt bound the old cycle the customer has
	// already paid for.
	LastPaymentAt time.Time
	NextPaymentAt time.Time
	// SwitchAt is the moment of the switch, inside the old cycle.
	SwitchAt time.Time

	// OldSignUpFeePaid is what was collected as sign-up fee on the original
	// plan, used by the difference apportionment mode.
	OldSignUpFeePaid decimal.Decimal
	// CompletedPayments reduces the new plan's remaining length when length
	// proration is enabled.
	CompletedPayments int

	SignUpFeeMode SignUpFeeProration
	// ProrateLength reduces the new plan's length by payments already made.
	ProrateLength bool
	// ExtendOnDowngrade pushes the next payment date forward by the days the
	// overpayment covers instead of forfeiting it.
	ExtendOnDowngrade bool
}

// SwitchResult is the prorated outcome of a plan switch.
type SwitchResult struct {
	Type SwitchType

	// GapCharge is the non-negative amount added to the sign-up fee to cover
	// the price difference for the remainder of the old cycle.
	GapCharge decimal.Decimal
	// SignUpFee is the apportioned sign-up fee, excluding GapCharge.
	SignUpFee decimal.Decimal

	// NextPaymentAt overrides the new subscription's first renewal date when
	// non-zero (shortened pre-paid period on upgrade, extension on downgrade).
	NextPaymentAt time.Time

	// RemainingLength is the new subscription's length after optional
	// apportionment; 0 = unlimited when the new plan is unlimited.
	RemainingLength int

	// OldRatePerDay and NewRatePerDay are exposed for audit notes.
	OldRatePerDay decimal.Decimal
	NewRatePerDay decimal.Decimal
}
