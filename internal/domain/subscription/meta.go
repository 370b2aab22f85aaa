package subscription

import (
	"encoding/json"
	"strconv"
	"time"

	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

// Keyed attributes persisted on the subscription line item. These are the
// engine's durable contract with the host platform's order store.
const (
	MetaStatus            = "_subscription_status"
	MetaPeriod            = "_subscription_period"
	MetaInterval          = "_subscription_interval"
	MetaLength            = "_subscription_length"
	MetaStartDate         = "_subscription_start_date"
	MetaExpiryDate        = "_subscription_expiry_date"
	MetaTrialExpiryDate   = "_subscription_trial_expiry_date"
	MetaEndDate           = "_subscription_end_date"
	MetaFailedPayments    = "_subscription_failed_payments"
	MetaCompletedPayments = "_subscription_completed_payments"
	MetaSuspensionCount   = "_subscription_suspension_count"

	// Cart-facing attributes consumed by the totals calculator. Trial length
	// is never copied onto renewal records.
	MetaSignUpFee   = "_subscription_sign_up_fee"
	MetaTrialLength = "_subscription_trial_length"
)

// zeroDate is the stored representation of "no date" (0 per the attribute
// contract: expiry 0 = never, trial 0 = no trial, end 0 = not ended).
const zeroDate = "0"

func encodeDate(t time.Time) string {
	if t.IsZero() {
		return zeroDate
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeDate(s string) (time.Time, error) {
	if s == "" || s == zeroDate {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// EncodeMeta writes the subscription's durable attributes into the given
// line-item metadata map, replacing any previous values.
func EncodeMeta(sub *Subscription, meta map[string]string) {
	meta[MetaStatus] = sub.Status.String()
	meta[MetaPeriod] = sub.Period.String()
	meta[MetaInterval] = strconv.Itoa(sub.Interval)
	meta[MetaLength] = strconv.Itoa(sub.Length)
	meta[MetaStartDate] = encodeDate(sub.StartDate)
	meta[MetaExpiryDate] = encodeDate(sub.ExpiryDate)
	meta[MetaTrialExpiryDate] = encodeDate(sub.TrialEndDate)
	meta[MetaEndDate] = encodeDate(sub.EndDate)
	meta[MetaFailedPayments] = strconv.Itoa(sub.FailedPayments)
	meta[MetaSuspensionCount] = strconv.Itoa(sub.SuspensionCount)

	payments := make([]string, 0, len(sub.CompletedPayments))
	for _, ts := range sub.CompletedPayments {
		payments = append(payments, ts.UTC().Format(time.RFC3339))
	}
	encoded, _ := json.Marshal(payments)
	meta[MetaCompletedPayments] = string(encoded)
}

// DecodeMeta materializes a subscription from line-item metadata. Returns
// ErrNotFound when the line item carries no subscription attributes.
func DecodeMeta(key types.SubscriptionKey, meta map[string]string) (*Subscription, error) {
	rawStatus, ok := meta[MetaStatus]
	if !ok {
		return nil, ierr.NewError("line item has no subscription attributes").
			WithHintf("order %s has no subscription for product %s", key.OrderID, key.ProductID).
			Mark(ierr.ErrNotFound)
	}

	sub := &Subscription{
		Key:    key,
		Status: types.SubscriptionStatus(rawStatus),
		Period: types.BillingPeriod(meta[MetaPeriod]),
	}
	if err := sub.Status.Validate(); err != nil {
		return nil, err
	}
	if err := sub.Period.Validate(); err != nil {
		return nil, err
	}

	var err error
	if sub.Interval, err = decodeInt(meta, MetaInterval, 1); err != nil {
		return nil, err
	}
	if sub.Length, err = decodeInt(meta, MetaLength, 0); err != nil {
		return nil, err
	}
	if sub.FailedPayments, err = decodeInt(meta, MetaFailedPayments, 0); err != nil {
		return nil, err
	}
	if sub.SuspensionCount, err = decodeInt(meta, MetaSuspensionCount, 0); err != nil {
		return nil, err
	}

	dates := []struct {
		key  string
		dest *time.Time
	}{
		{MetaStartDate, &sub.StartDate},
		{MetaExpiryDate, &sub.ExpiryDate},
		{MetaTrialExpiryDate, &sub.TrialEndDate},
		{MetaEndDate, &sub.EndDate},
	}
	for _, d := range dates {
		parsed, err := decodeDate(meta[d.key])
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("corrupt date attribute %s on subscription %s", d.key, key).
				Mark(ierr.ErrValidation)
		}
		*d.dest = parsed
	}

	if raw := meta[MetaCompletedPayments]; raw != "" {
		var encoded []string
		if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
			return nil, ierr.WithError(err).
				WithHintf("corrupt completed payments attribute on subscription %s", key).
				Mark(ierr.ErrValidation)
		}
		sub.CompletedPayments = make([]time.Time, 0, len(encoded))
		for _, s := range encoded {
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, ierr.WithError(err).
					WithHintf("corrupt payment timestamp on subscription %s", key).
					Mark(ierr.ErrValidation)
			}
			sub.CompletedPayments = append(sub.CompletedPayments, ts)
		}
	}

	return sub, nil
}

// StripMeta removes every subscription attribute from the metadata map.
// Used on deletion and when the renewal generator drops subscription-specific
// metadata from copied line items.
func StripMeta(meta map[string]string, keep ...string) {
	all := []string{
		MetaStatus, MetaPeriod, MetaInterval, MetaLength,
		MetaStartDate, MetaExpiryDate, MetaTrialExpiryDate, MetaEndDate,
		MetaFailedPayments, MetaCompletedPayments, MetaSuspensionCount,
		MetaSignUpFee, MetaTrialLength,
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	for _, k := range all {
		if !kept[k] {
			delete(meta, k)
		}
	}
}

func decodeInt(meta map[string]string, key string, fallback int) (int, error) {
	raw, ok := meta[key]
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHintf("corrupt numeric attribute %s", key).
			Mark(ierr.ErrValidation)
	}
	return v, nil
}
