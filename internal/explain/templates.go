package explain

import (
	"github.com/mbd888/fraudsight/internal/features"
)

// featureTemplates is the static lookup from feature name to template
// bundle. Thresholds were tuned against the trained model's attribution
// magnitudes; unknown names fall back to the generic defaults.
func featureTemplates() map[string]template {
	return map[string]template{
		features.LogPrefix + features.FeatAccountRatio1h: {
			icon:       "💰",
			title:      "Spending pattern (1h)",
			detail:     "Amount vs 1-hour average",
			thresholds: thresholds{low: 0.15, medium: 0.25, high: 0.4},
		},
		features.LogPrefix + features.FeatAccountRatio24h: {
			icon:       "💰",
			title:      "Spending pattern (24h)",
			detail:     "Amount vs daily average",
			thresholds: thresholds{low: 0.12, medium: 0.2, high: 0.35},
		},
		features.LogPrefix + features.FeatAccountRatio7d: {
			icon:       "💰",
			title:      "Spending pattern (7d)",
			detail:     "Amount vs weekly average",
			thresholds: thresholds{low: 0.1, medium: 0.18, high: 0.3},
		},
		features.LogPrefix + features.FeatCategoryRatio1h: {
			icon:       "🏪",
			title:      "Category spending (1h)",
			detail:     "Amount vs category average",
			thresholds: thresholds{low: 0.1, medium: 0.2, high: 0.35},
		},
		features.LogPrefix + features.FeatCategoryRatio24h: {
			icon:       "🏪",
			title:      "Category spending (24h)",
			detail:     "Amount vs category average",
			thresholds: thresholds{low: 0.08, medium: 0.15, high: 0.25},
		},
		features.LogPrefix + features.FeatCategoryRatio7d: {
			icon:       "🏪",
			title:      "Category spending (7d)",
			detail:     "Amount vs category average",
			thresholds: thresholds{low: 0.08, medium: 0.15, high: 0.25},
		},
		features.LogPrefix + features.FeatCount1h: {
			icon:       "🚗",
			title:      "Transaction velocity",
			detail:     "Transactions in last hour",
			thresholds: thresholds{low: 0.1, medium: 0.2, high: 0.3},
		},
		features.LogPrefix + features.FeatCount24h: {
			icon:       "📊",
			title:      "Daily activity",
			detail:     "Transactions in last 24 hours",
			thresholds: thresholds{low: 0.08, medium: 0.15, high: 0.25},
		},
		features.LogPrefix + features.FeatCount7d: {
			icon:       "📈",
			title:      "Weekly activity",
			detail:     "Transactions in last 7 days",
			thresholds: thresholds{low: 0.05, medium: 0.1, high: 0.2},
		},
		features.FeatLateNightWindow: {
			icon:       "🕐",
			title:      "Transaction timing",
			detail:     "Late-night hours indicator",
			thresholds: thresholds{low: 0.1, medium: 0.2, high: 0.35},
		},
		features.FeatLateEveningWindow: {
			icon:       "🌆",
			title:      "Evening timing",
			detail:     "Late-evening hours indicator",
			thresholds: thresholds{low: 0.05, medium: 0.1, high: 0.2},
		},
		features.FeatHourOfDay: {
			icon:       "🕐",
			title:      "Time of day",
			detail:     "Hour of transaction",
			thresholds: thresholds{low: 0.05, medium: 0.1, high: 0.18},
		},
		features.FeatMedianDiff7d: {
			icon:       "📊",
			title:      "Spending deviation",
			detail:     "Difference from median",
			thresholds: thresholds{low: 0.08, medium: 0.15, high: 0.25},
		},
		features.FeatMedianDiff1d: {
			icon:       "📊",
			title:      "Daily deviation",
			detail:     "Daily spending difference",
			thresholds: thresholds{low: 0.05, medium: 0.12, high: 0.2},
		},
		features.FeatAmount: {
			icon:       "💵",
			title:      "Transaction amount",
			detail:     "Raw amount",
			thresholds: thresholds{low: 0.05, medium: 0.1, high: 0.2},
		},
	}
}
