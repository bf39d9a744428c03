// Package features turns a batch of raw transactions into the numeric
// feature vectors consumed by the fraud classifier.
//
// The work happens in two stages. The aggregator computes trailing-window
// behavioral statistics over the whole batch at once (per-account and
// per-category counts, mean ratios, and median deviations) because each
// transaction's features depend on the transactions before it. The
// normalizer then applies the skew-correcting log transforms and emits
// vectors matching the classifier's declared schema exactly.
package features

import "time"

// Raw feature names produced by the aggregator.
const (
	FeatAmount            = "amt"
	FeatHourOfDay         = "hour_of_day"
	FeatLateNightWindow   = "is_late_night_fraud_window"
	FeatLateEveningWindow = "is_late_evening_fraud_window"

	FeatCount1h  = "trans_in_last_1h"
	FeatCount24h = "trans_in_last_24h"
	FeatCount7d  = "trans_in_last_7d"

	FeatAccountRatio1h  = "amt_per_account_avg_ratio_1h"
	FeatAccountRatio24h = "amt_per_account_avg_ratio_24h"
	FeatAccountRatio7d  = "amt_per_account_avg_ratio_7d"

	FeatCategoryRatio1h  = "amt_per_category_avg_ratio_1h"
	FeatCategoryRatio24h = "amt_per_category_avg_ratio_24h"
	FeatCategoryRatio7d  = "amt_per_category_avg_ratio_7d"

	FeatMedianDiff1d = "amt_diff_from_account_median_1d"
	FeatMedianDiff7d = "amt_diff_from_account_median_7d"
)

// LogPrefix marks a skew-corrected feature derived via log1p.
const LogPrefix = "log_"

// Trailing window durations. Counts and ratios use all three; median
// deviations use the 1d and 7d windows.
var (
	countWindows = []struct {
		name string
		dur  time.Duration
	}{
		{"1h", time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
	}

	medianWindows = []struct {
		name string
		dur  time.Duration
	}{
		{"1d", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
	}
)

// epsilon guards the ratio denominator. An account's first transaction has
// no trailing mean, which becomes amt/epsilon, an enormous finite ratio.
// Brand-new history plus a large purchase is itself a signal.
const epsilon = 1e-6

// Vector maps feature names to values for one transaction.
type Vector map[string]float64

// skewedFeatures are the right-skewed features that receive a log1p
// transform during normalization. Order matters: it fixes the schema.
var skewedFeatures = []string{
	FeatCount1h,
	FeatCount24h,
	FeatCount7d,
	FeatAccountRatio1h,
	FeatAccountRatio24h,
	FeatAccountRatio7d,
	FeatCategoryRatio1h,
	FeatCategoryRatio24h,
	FeatCategoryRatio7d,
}

// Schema returns the classifier's feature names in canonical order. The
// normalizer emits exactly these; Matrix lays columns out in this order.
func Schema() []string {
	names := []string{
		FeatAmount,
		FeatHourOfDay,
		FeatLateNightWindow,
		FeatLateEveningWindow,
	}
	for _, f := range skewedFeatures {
		names = append(names, LogPrefix+f)
	}
	names = append(names, FeatMedianDiff1d, FeatMedianDiff7d)
	return names
}
