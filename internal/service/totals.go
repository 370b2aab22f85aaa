package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// SubscriptionTerms are the recurring-billing attributes of a cart item.
type SubscriptionTerms struct {
	Period      types.BillingPeriod `json:"period"`
	Interval    int                 `json:"interval"`
	Length      int                 `json:"length"`
	TrialLength int                 `json:"trial_length"`
	// TrialPeriod is the unit of TrialLength. Empty means the billing
	// period, so a day-long trial on a monthly plan stays expressible.
	TrialPeriod types.BillingPeriod `json:"trial_period,omitempty"`
	SignUpFee   decimal.Decimal     `json:"sign_up_fee"`
}

func (t *SubscriptionTerms) HasTrial() bool {
	return t.TrialLength > 0
}

// EffectiveTrialPeriod resolves the trial's unit, defaulting to the billing
// period.
func (t *SubscriptionTerms) EffectiveTrialPeriod() types.BillingPeriod {
	if t.TrialPeriod != "" {
		return t.TrialPeriod
	}
	return t.Period
}

func (t *SubscriptionTerms) HasSignUpFee() bool {
	return t.SignUpFee.IsPositive()
}

// CartItem is one line of a checkout cart. Subscription is nil for ordinary
// products.
type CartItem struct {
	ProductID     string             `json:"product_id"`
	Quantity      int                `json:"quantity" validate:"gt=0"`
	Price         decimal.Decimal    `json:"price"`
	TaxRate       decimal.Decimal    `json:"tax_rate"`
	NeedsShipping bool               `json:"needs_shipping"`
	Subscription  *SubscriptionTerms `json:"subscription,omitempty"`
}

// Cart is the engine's view of a checkout cart.
type Cart struct {
	Items        []*CartItem     `json:"items" validate:"required,min=1"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
}

func (c *Cart) subscriptionItem() *CartItem {
	item, _ := lo.Find(c.Items, func(i *CartItem) bool { return i.Subscription != nil })
	return item
}

// totalsSnapshot is the result of one mode-driven pass over the cart.
type totalsSnapshot struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// CartTotals separates what is due at checkout from what recurs every period.
type CartTotals struct {
	InitialTotal    decimal.Decimal `json:"initial_total"`
	InitialTax      decimal.Decimal `json:"initial_tax"`
	InitialShipping decimal.Decimal `json:"initial_shipping"`

	RecurringTotal    decimal.Decimal `json:"recurring_total"`
	RecurringTax      decimal.Decimal `json:"recurring_tax"`
	RecurringShipping decimal.Decimal `json:"recurring_shipping"`

	Period   types.BillingPeriod `json:"period"`
	Interval int                 `json:"interval"`
}

// TotalsService computes the two coherent numbers a subscription checkout
// needs: the amount due now and the amount due every period. Both come from
// repeated evaluations of one mode-oblivious totals pass rather than from
// per-combination special cases.
type TotalsService interface {
	Calculate(ctx context.Context, cart *Cart) (*CartTotals, error)
}

type totalsService struct {
	ServiceParams
}

func NewTotalsService(params ServiceParams) TotalsService {
	return &totalsService{ServiceParams: params}
}

func (s *totalsService) Calculate(ctx context.Context, cart *Cart) (*CartTotals, error) {
	if cart == nil || len(cart.Items) == 0 {
		return nil, ierr.NewError("cart is empty").
			WithHint("Totals require at least one cart item").
			Mark(ierr.ErrValidation)
	}

	item := cart.subscriptionItem()
	if item == nil {
		// No subscription in the cart: one ordinary pass, nothing recurs.
		plain := s.pass(cart, types.CalculationModeNone)
		return &CartTotals{
			InitialTotal:    plain.Total,
			InitialTax:      plain.Tax,
			InitialShipping: plain.Shipping,
		}, nil
	}
	terms := item.Subscription
	if err := terms.Period.Validate(); err != nil {
		return nil, err
	}

	// The recurring snapshot is always the per-period amount.
	recurring := s.pass(cart, types.CalculationModeRecurringTotal)

	// The correct initial snapshot depends only on which of trial and
	// sign-up fee are present.
	var initial totalsSnapshot
	switch {
	case terms.HasTrial() && terms.HasSignUpFee():
		initial = s.pass(cart, types.CalculationModeSignUpFeeTotal)
	case terms.HasTrial():
		initial = s.pass(cart, types.CalculationModeFreeTrialTotal)
	case terms.HasSignUpFee():
		initial = s.pass(cart, types.CalculationModeCombinedTotal)
	default:
		initial = s.pass(cart, types.CalculationModeNone)
	}

	s.Logger.Debugw("cart totals computed",
		"product_id", item.ProductID,
		"initial_total", initial.Total,
		"recurring_total", recurring.Total,
		"period", terms.Period,
		"interval", terms.Interval,
	)

	return &CartTotals{
		InitialTotal:      initial.Total,
		InitialTax:        initial.Tax,
		InitialShipping:   initial.Shipping,
		RecurringTotal:    recurring.Total,
		RecurringTax:      recurring.Tax,
		RecurringShipping: recurring.Shipping,
		Period:            terms.Period,
		Interval:          terms.Interval,
	}, nil
}

// pass is the generic totals routine. It never inspects which combination of
// trial and fee the cart has; the mode alone decides what each item costs and
// whether its shipping counts.
func (s *totalsService) pass(cart *Cart, mode types.CalculationMode) totalsSnapshot {
	var snap totalsSnapshot
	shipping := false

	for _, item := range cart.Items {
		price := itemPrice(item, mode)
		line := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		snap.Subtotal = snap.Subtotal.Add(line)
		snap.Tax = snap.Tax.Add(line.Mul(item.TaxRate))

		if item.NeedsShipping && shipsUnder(item, mode) {
			shipping = true
		}
	}

	if shipping {
		snap.Shipping = cart.ShippingCost
	}
	snap.Total = snap.Subtotal.Add(snap.Tax).Add(snap.Shipping)
	return snap
}

// itemPrice returns what one unit of the item costs under the given mode.
func itemPrice(item *CartItem, mode types.CalculationMode) decimal.Decimal {
	if item.Subscription == nil {
		// Ordinary products never recur.
		if mode == types.CalculationModeRecurringTotal {
			return decimal.Zero
		}
		return item.Price
	}

	switch mode {
	case types.CalculationModeCombinedTotal:
		return item.Price.Add(item.Subscription.SignUpFee)
	case types.CalculationModeSignUpFeeTotal:
		return item.Subscription.SignUpFee
	case types.CalculationModeFreeTrialTotal:
		return decimal.Zero
	default:
		return item.Price
	}
}

// shipsUnder reports whether the item's shipping counts toward the snapshot.
// Nothing ships during a free trial, and ordinary products never ship with a
// renewal, but an ordinary product in a trial cart still ships now.
func shipsUnder(item *CartItem, mode types.CalculationMode) bool {
	if item.Subscription == nil {
		return mode != types.CalculationModeRecurringTotal
	}
	switch mode {
	case types.CalculationModeFreeTrialTotal, types.CalculationModeSignUpFeeTotal:
		return false
	default:
		return true
	}
}
