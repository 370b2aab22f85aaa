package types

import (
	"time"

	"github.com/samber/lo"

	ierr "github.com/vidinfra/subflow/internal/errors"
)

// BillingPeriod is the unit of a subscription's billing cycle.
type BillingPeriod string

const (
	BillingPeriodDay   BillingPeriod = "day"
	BillingPeriodWeek  BillingPeriod = "week"
	BillingPeriodMonth BillingPeriod = "month"
	BillingPeriodYear  BillingPeriod = "year"
)

var BillingPeriodValues = []BillingPeriod{
	BillingPeriodDay,
	BillingPeriodWeek,
	BillingPeriodMonth,
	BillingPeriodYear,
}

func (p BillingPeriod) String() string {
	return string(p)
}

func (p BillingPeriod) Validate() error {
	if !lo.Contains(BillingPeriodValues, p) {
		return ierr.NewError("invalid billing period").
			WithHint("Billing period must be day, week, month or year").
			WithReportableDetails(map[string]any{
				"period":         p,
				"allowed_values": BillingPeriodValues,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NextBillingDate calculates the next billing date from the given start time,
// billing period and interval (the frequency multiplier).
// For example:
// - period month, interval 2: add two months
// - period week, interval 3: add 21 days
// Month and year additions clamp to the last valid day of the target month so a
// Jan 31 anchor bills on Feb 28/29 rather than rolling into March.
func NextBillingDate(start time.Time, interval int, period BillingPeriod) (time.Time, error) {
	if interval <= 0 {
		return start, ierr.NewErrorf("billing interval must be a positive integer, got %d", interval).
			WithHint("Billing interval must be a positive integer").
			Mark(ierr.ErrValidation)
	}

	switch period {
	case BillingPeriodDay:
		return AddClampedDate(start, 0, 0, interval), nil
	case BillingPeriodWeek:
		return AddClampedDate(start, 0, 0, 7*interval), nil
	case BillingPeriodMonth:
		return AddClampedDate(start, 0, interval, 0), nil
	case BillingPeriodYear:
		return AddClampedDate(start, interval, 0, 0), nil
	default:
		return start, ierr.NewErrorf("invalid billing period type: %s", period).
			Mark(ierr.ErrValidation)
	}
}

// AddClampedDate behaves like time.AddDate but clamps the day of month to the
// last valid day instead of normalizing into the following month. Day offsets
// are applied after the clamped month/year shift.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	// Moving beyond December adjusts into the following year, and vice versa.
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d
	if newD > lastDay {
		newD = lastDay
	}

	shifted := time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location())
	if days != 0 {
		shifted = shifted.AddDate(0, 0, days)
	}
	return shifted
}

// DaysBetween counts whole calendar days from start to end, inclusive of the
// start day and exclusive of the end day. Returns 0 when end precedes start.
func DaysBetween(start, end time.Time) int {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if endDay.Before(startDay) {
		return 0
	}
	return int(endDay.Sub(startDay).Hours() / 24)
}
