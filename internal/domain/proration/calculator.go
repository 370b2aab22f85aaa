package proration

import (
	"context"

	"github.com/shopspring/decimal"

	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// Calculator prorates charges and dates for mid-cycle plan switches.
type Calculator interface {
	Calculate(ctx context.Context, params SwitchParams) (*SwitchResult, error)
}

// NewCalculator returns the day-based calculator used for all switches.
func NewCalculator() Calculator {
	return &dayBasedCalculator{}
}

// dayBasedCalculator derives a price per day for both plans over the cycle
// actually paid for, then settles the difference for the days remaining.
type dayBasedCalculator struct{}

func (c *dayBasedCalculator) Calculate(ctx context.Context, params SwitchParams) (*SwitchResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	// Days since last payment plus days until next payment: the full old cycle.
	daysInOldCycle := types.DaysBetween(params.LastPaymentAt, params.NextPaymentAt)
	if daysInOldCycle <= 0 {
		return nil, ierr.NewError("invalid billing cycle").
			WithHintf("old cycle has zero or negative days (%v to %v)", params.LastPaymentAt, params.NextPaymentAt).
			Mark(ierr.ErrValidation)
	}

	// Days of the old cycle already paid for but not yet consumed.
	daysRemaining := types.DaysBetween(params.SwitchAt, params.NextPaymentAt)
	if daysRemaining > daysInOldCycle {
		daysRemaining = daysInOldCycle
	}

	newCycleEnd, err := types.NextBillingDate(params.SwitchAt, params.NewPlan.Interval, params.NewPlan.Period)
	if err != nil {
		return nil, err
	}
	daysInNewCycle := types.DaysBetween(params.SwitchAt, newCycleEnd)
	if daysInNewCycle <= 0 {
		return nil, ierr.NewError("invalid billing cycle").
			WithHintf("new cycle has zero or negative days from %v", params.SwitchAt).
			Mark(ierr.ErrValidation)
	}

	oldRate := params.OldPlan.PricePerPeriod.Div(decimal.NewFromInt(int64(daysInOldCycle)))
	newRate := params.NewPlan.PricePerPeriod.Div(decimal.NewFromInt(int64(daysInNewCycle)))

	result := &SwitchResult{
		GapCharge:     decimal.Zero,
		SignUpFee:     c.apportionSignUpFee(params),
		OldRatePerDay: oldRate,
		NewRatePerDay: newRate,
	}

	decimalRemaining := decimal.NewFromInt(int64(daysRemaining))
	// Value of the unconsumed portion of the old cycle, at each plan's rate.
	oldCredit := oldRate.Mul(decimalRemaining)
	newCost := newRate.Mul(decimalRemaining)

	switch {
	case newRate.GreaterThan(oldRate):
		result.Type = SwitchTypeUpgrade

		// If what was already paid covers the new plan's (shorter) cycle,
		// shorten the pre-paid period instead of charging again.
		coveredDays := 0
		if newRate.GreaterThan(decimal.Zero) {
			coveredDays = int(oldCredit.Div(newRate).IntPart())
		}
		if coveredDays >= daysInNewCycle {
			result.NextPaymentAt = types.AddClampedDate(params.SwitchAt, 0, 0, coveredDays)
		} else {
			gap := newCost.Sub(oldCredit)
			if gap.GreaterThan(decimal.Zero) {
				result.GapCharge = gap
			}
		}

	case newRate.LessThan(oldRate):
		result.Type = SwitchTypeDowngrade

		if params.ExtendOnDowngrade && newRate.GreaterThan(decimal.Zero) {
			// Push the next payment out by the days the overpayment covers.
			extraDays := int(oldCredit.Sub(newCost).Div(newRate).IntPart())
			if extraDays > 0 {
				result.NextPaymentAt = types.AddClampedDate(params.NextPaymentAt, 0, 0, extraDays)
			}
		}

	default:
		result.Type = SwitchTypeCrossgrade
	}

	result.RemainingLength = c.apportionLength(params)
	return result, nil
}

// apportionSignUpFee applies the configured sign-up fee mode.
func (c *dayBasedCalculator) apportionSignUpFee(params SwitchParams) decimal.Decimal {
	switch params.SignUpFeeMode {
	case SignUpFeeProrationNone:
		return decimal.Zero
	case SignUpFeeProrationDifference:
		difference := params.NewPlan.SignUpFee.Sub(params.OldSignUpFeePaid)
		if difference.LessThan(decimal.Zero) {
			return decimal.Zero
		}
		return difference
	default:
		return params.NewPlan.SignUpFee
	}
}

// apportionLength reduces the new plan's remaining payment count by payments
// already made, when enabled. An unlimited new plan stays unlimited.
func (c *dayBasedCalculator) apportionLength(params SwitchParams) int {
	if params.NewPlan.Length == 0 {
		return 0
	}
	if !params.ProrateLength {
		return params.NewPlan.Length
	}
	remaining := params.NewPlan.Length - params.CompletedPayments
	if remaining < 1 {
		remaining = 1
	}
	return remaining
}

func validateParams(params SwitchParams) error {
	if params.SwitchAt.IsZero() {
		return ierr.NewError("switch date is required").Mark(ierr.ErrValidation)
	}
	if params.LastPaymentAt.IsZero() || params.NextPaymentAt.IsZero() {
		return ierr.NewError("last and next payment dates are required").
			WithHint("A plan switch can only be prorated inside a paid billing cycle").
			Mark(ierr.ErrValidation)
	}
	if params.NextPaymentAt.Before(params.LastPaymentAt) {
		return ierr.NewError("next payment date cannot precede last payment date").
			Mark(ierr.ErrValidation)
	}
	if params.OldPlan.Interval <= 0 || params.NewPlan.Interval <= 0 {
		return ierr.NewError("billing intervals must be positive").
			Mark(ierr.ErrValidation)
	}
	if err := params.OldPlan.Period.Validate(); err != nil {
		return err
	}
	if err := params.NewPlan.Period.Validate(); err != nil {
		return err
	}
	if params.OldPlan.PricePerPeriod.IsNegative() || params.NewPlan.PricePerPeriod.IsNegative() {
		return ierr.NewError("plan prices cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}
