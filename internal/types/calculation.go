package types

import (
	"github.com/samber/lo"

	ierr "github.com/vidinfra/subflow/internal/errors"
)

// CalculationMode selects which portion of a cart a totals pass computes.
// It is threaded explicitly through the totals routine rather than held in
// shared state, so nested or snapshot recalculations cannot interfere.
type CalculationMode string

const (
	// CalculationModeNone computes the cart as the host platform would.
	CalculationModeNone CalculationMode = "none"
	// CalculationModeCombinedTotal includes sign-up fees and recurring amounts.
	CalculationModeCombinedTotal CalculationMode = "combined_total"
	// CalculationModeSignUpFeeTotal includes sign-up fees only.
	CalculationModeSignUpFeeTotal CalculationMode = "sign_up_fee_total"
	// CalculationModeRecurringTotal includes recurring amounts only.
	CalculationModeRecurringTotal CalculationMode = "recurring_total"
	// CalculationModeFreeTrialTotal zeroes subscription amounts for trial carts.
	CalculationModeFreeTrialTotal CalculationMode = "free_trial_total"
)

var CalculationModeValues = []CalculationMode{
	CalculationModeNone,
	CalculationModeCombinedTotal,
	CalculationModeSignUpFeeTotal,
	CalculationModeRecurringTotal,
	CalculationModeFreeTrialTotal,
}

func (m CalculationMode) String() string {
	return string(m)
}

func (m CalculationMode) Validate() error {
	if !lo.Contains(CalculationModeValues, m) {
		return ierr.NewError("invalid calculation mode").
			WithHint("Unknown cart calculation mode").
			WithReportableDetails(map[string]any{
				"mode":           m,
				"allowed_values": CalculationModeValues,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
