package proration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidinfra/subflow/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// A 30-day cycle paid at $1/day with 10 days left, switching to a plan that
// costs $2/day. The 10 remaining days were worth $10 old, cost $20 new.
func baseParams() SwitchParams {
	return SwitchParams{
		OldPlan: PlanTerms{
			PricePerPeriod: decimal.NewFromInt(30),
			Period:         types.BillingPeriodMonth,
			Interval:       1,
		},
		NewPlan: PlanTerms{
			PricePerPeriod: decimal.NewFromInt(62), // 31-day cycle from Jan 21
			Period:         types.BillingPeriodMonth,
			Interval:       1,
		},
		LastPaymentAt: date(2026, time.January, 1),
		NextPaymentAt: date(2026, time.January, 31),
		SwitchAt:      date(2026, time.January, 21),
	}
}

func TestCalculateUpgradeGapCharge(t *testing.T) {
	calc := NewCalculator()
	result, err := calc.Calculate(context.Background(), baseParams())
	require.NoError(t, err)

	assert.Equal(t, SwitchTypeUpgrade, result.Type)
	assert.True(t, result.GapCharge.Equal(decimal.NewFromInt(10)), "got %s", result.GapCharge)
	assert.True(t, result.NextPaymentAt.IsZero())
	assert.True(t, result.OldRatePerDay.Equal(decimal.NewFromInt(1)))
	assert.True(t, result.NewRatePerDay.Equal(decimal.NewFromInt(2)))
}

// When the unused old-cycle value covers the new plan's shorter cycle in
// full, the upgrade charges nothing and re-anchors the next payment instead.
func TestCalculateUpgradeCoveredByCredit(t *testing.T) {
	params := baseParams()
	params.OldPlan.PricePerPeriod = decimal.NewFromInt(75) // $2.50/day, credit $25
	params.NewPlan = PlanTerms{
		PricePerPeriod: decimal.NewFromInt(21), // $3/day over a 7-day cycle
		Period:         types.BillingPeriodWeek,
		Interval:       1,
	}

	calc := NewCalculator()
	result, err := calc.Calculate(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, SwitchTypeUpgrade, result.Type)
	assert.True(t, result.GapCharge.IsZero())
	// $25 at the new $3/day buys 8 days from the switch date.
	assert.True(t, result.NextPaymentAt.Equal(date(2026, time.January, 29)), "got %s", result.NextPaymentAt)
}

func TestCalculateDowngradeExtends(t *testing.T) {
	params := baseParams()
	params.OldPlan.PricePerPeriod = decimal.NewFromInt(60)  // $2/day
	params.NewPlan.PricePerPeriod = decimal.NewFromInt(31)  // $1/day
	params.ExtendOnDowngrade = true

	calc := NewCalculator()
	result, err := calc.Calculate(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, SwitchTypeDowngrade, result.Type)
	assert.True(t, result.GapCharge.IsZero())
	// $10 of overpayment buys 10 extra days past the old next payment.
	assert.True(t, result.NextPaymentAt.Equal(date(2026, time.February, 10)), "got %s", result.NextPaymentAt)
}

func TestCalculateDowngradeWithoutExtension(t *testing.T) {
	params := baseParams()
	params.OldPlan.PricePerPeriod = decimal.NewFromInt(60)
	params.NewPlan.PricePerPeriod = decimal.NewFromInt(31)

	calc := NewCalculator()
	result, err := calc.Calculate(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, SwitchTypeDowngrade, result.Type)
	assert.True(t, result.NextPaymentAt.IsZero())
}

func TestCalculateCrossgrade(t *testing.T) {
	params := baseParams()
	params.NewPlan.PricePerPeriod = decimal.NewFromInt(31) // $1/day: same rate

	calc := NewCalculator()
	result, err := calc.Calculate(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, SwitchTypeCrossgrade, result.Type)
	assert.True(t, result.GapCharge.IsZero())
}

func TestApportionSignUpFee(t *testing.T) {
	tests := []struct {
		name    string
		mode    SignUpFeeProration
		newFee  int64
		oldPaid int64
		want    int64
	}{
		{"full mode charges the whole fee", SignUpFeeProrationFull, 10, 4, 10},
		{"none mode waives the fee", SignUpFeeProrationNone, 10, 4, 0},
		{"difference mode charges the gap", SignUpFeeProrationDifference, 10, 4, 6},
		{"difference never refunds", SignUpFeeProrationDifference, 4, 10, 0},
	}
	calc := NewCalculator()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := baseParams()
			params.SignUpFeeMode = tc.mode
			params.NewPlan.SignUpFee = decimal.NewFromInt(tc.newFee)
			params.OldSignUpFeePaid = decimal.NewFromInt(tc.oldPaid)

			result, err := calc.Calculate(context.Background(), params)
			require.NoError(t, err)
			assert.True(t, result.SignUpFee.Equal(decimal.NewFromInt(tc.want)), "got %s", result.SignUpFee)
		})
	}
}

func TestApportionLength(t *testing.T) {
	tests := []struct {
		name      string
		newLength int
		completed int
		prorate   bool
		want      int
	}{
		{"unlimited stays unlimited", 0, 5, true, 0},
		{"proration subtracts completed payments", 12, 5, true, 7},
		{"at least one payment remains", 12, 20, true, 1},
		{"disabled keeps the full length", 12, 5, false, 12},
	}
	calc := NewCalculator()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := baseParams()
			params.NewPlan.Length = tc.newLength
			params.CompletedPayments = tc.completed
			params.ProrateLength = tc.prorate

			result, err := calc.Calculate(context.Background(), params)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.RemainingLength)
		})
	}
}

func TestCalculateRejectsBadParams(t *testing.T) {
	calc := NewCalculator()

	params := baseParams()
	params.NextPaymentAt = params.LastPaymentAt.AddDate(0, 0, -1)
	_, err := calc.Calculate(context.Background(), params)
	require.Error(t, err)

	params = baseParams()
	params.LastPaymentAt = time.Time{}
	_, err = calc.Calculate(context.Background(), params)
	require.Error(t, err)

	params = baseParams()
	params.NewPlan.Interval = 0
	_, err = calc.Calculate(context.Background(), params)
	require.Error(t, err)
}
