package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/types"
)

func TestMetaRoundTrip(t *testing.T) {
	src := &Subscription{
		Key:             types.NewSubscriptionKey("ord_1", "prod_1"),
		Status:          types.SubscriptionStatusActive,
		Period:          types.BillingPeriodMonth,
		Interval:        2,
		Length:          12,
		StartDate:       d(2026, time.January, 1),
		ExpiryDate:      d(2028, time.January, 1),
		TrialEndDate:    d(2026, time.February, 1),
		FailedPayments:  1,
		SuspensionCount: 2,
		CompletedPayments: []time.Time{
			d(2026, time.February, 1),
			d(2026, time.April, 1),
		},
	}

	meta := make(map[string]string)
	EncodeMeta(src, meta)

	got, err := DecodeMeta(src.Key, meta)
	require.NoError(t, err)
	assert.Equal(t, src.Status, got.Status)
	assert.Equal(t, src.Interval, got.Interval)
	assert.Equal(t, src.Length, got.Length)
	assert.Equal(t, src.FailedPayments, got.FailedPayments)
	assert.Equal(t, src.SuspensionCount, got.SuspensionCount)
	assert.True(t, got.StartDate.Equal(src.StartDate))
	assert.True(t, got.ExpiryDate.Equal(src.ExpiryDate))
	assert.True(t, got.TrialEndDate.Equal(src.TrialEndDate))
	require.Len(t, got.CompletedPayments, 2)
	assert.True(t, got.CompletedPayments[1].Equal(src.CompletedPayments[1]))
}

func TestDecodeMetaWithoutAttributesIsNotFound(t *testing.T) {
	_, err := DecodeMeta(types.NewSubscriptionKey("ord_1", "prod_1"), map[string]string{})
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

// "0" is the stored representation of "no date": expiry never, no trial, not
// ended.
func TestDecodeMetaZeroDates(t *testing.T) {
	sub := &Subscription{
		Key:      types.NewSubscriptionKey("ord_1", "prod_1"),
		Status:   types.SubscriptionStatusActive,
		Period:   types.BillingPeriodMonth,
		Interval: 1,
	}
	meta := make(map[string]string)
	EncodeMeta(sub, meta)

	assert.Equal(t, "0", meta[MetaExpiryDate])
	assert.Equal(t, "0", meta[MetaTrialExpiryDate])
	assert.Equal(t, "0", meta[MetaEndDate])

	got, err := DecodeMeta(sub.Key, meta)
	require.NoError(t, err)
	assert.True(t, got.ExpiryDate.IsZero())
	assert.True(t, got.TrialEndDate.IsZero())
	assert.True(t, got.EndDate.IsZero())
}

func TestDecodeMetaDefaults(t *testing.T) {
	meta := map[string]string{
		MetaStatus: types.SubscriptionStatusActive.String(),
		MetaPeriod: types.BillingPeriodMonth.String(),
	}
	got, err := DecodeMeta(types.NewSubscriptionKey("ord_1", "prod_1"), meta)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Interval)
	assert.Equal(t, 0, got.Length)
	assert.Empty(t, got.CompletedPayments)
}

func TestDecodeMetaRejectsCorruptAttributes(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			MetaStatus: types.SubscriptionStatusActive.String(),
			MetaPeriod: types.BillingPeriodMonth.String(),
		}
	}
	key := types.NewSubscriptionKey("ord_1", "prod_1")

	meta := base()
	meta[MetaStatus] = "archived"
	_, err := DecodeMeta(key, meta)
	assert.Error(t, err)

	meta = base()
	meta[MetaInterval] = "often"
	_, err = DecodeMeta(key, meta)
	assert.Error(t, err)

	meta = base()
	meta[MetaStartDate] = "yesterday"
	_, err = DecodeMeta(key, meta)
	assert.Error(t, err)

	meta = base()
	meta[MetaCompletedPayments] = "{broken"
	_, err = DecodeMeta(key, meta)
	assert.Error(t, err)
}

func TestStripMeta(t *testing.T) {
	meta := map[string]string{
		MetaStatus:      "active",
		MetaPeriod:      "month",
		MetaSignUpFee:   "5",
		MetaTrialLength: "7",
		"_vendor_note":  "keep me",
	}
	StripMeta(meta)

	assert.Equal(t, map[string]string{"_vendor_note": "keep me"}, meta)
}

func TestStripMetaKeepsRequestedKeys(t *testing.T) {
	meta := map[string]string{
		MetaStatus:    "active",
		MetaSignUpFee: "5",
	}
	StripMeta(meta, MetaSignUpFee)

	assert.NotContains(t, meta, MetaStatus)
	assert.Equal(t, "5", meta[MetaSignUpFee])
}
