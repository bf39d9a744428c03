package explain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudsight/internal/features"
)

func TestExplainRanksByAbsoluteContribution(t *testing.T) {
	e := NewExplainer(features.Schema())

	values := map[string]float64{
		features.FeatAmount:                              250.0,
		features.FeatHourOfDay:                           14,
		features.LogPrefix + features.FeatCount1h:        math.Log1p(3),
		features.LogPrefix + features.FeatAccountRatio1h: math.Log1p(4.2),
	}
	contributions := map[string]float64{
		features.FeatAmount:                              0.05,
		features.FeatHourOfDay:                           -0.30,
		features.LogPrefix + features.FeatCount1h:        0.12,
		features.LogPrefix + features.FeatAccountRatio1h: 0.45,
	}

	got := e.Explain(values, contributions, 3)
	require.Len(t, got, 3)

	assert.Equal(t, features.LogPrefix+features.FeatAccountRatio1h, got[0].FeatureName)
	assert.Equal(t, features.FeatHourOfDay, got[1].FeatureName)
	assert.Equal(t, features.LogPrefix+features.FeatCount1h, got[2].FeatureName)

	// Negative contributions keep their sign in the output.
	assert.Equal(t, -0.3, got[1].Contribution)
}

func TestExplainTieBreakFollowsSchemaOrder(t *testing.T) {
	e := NewExplainer(features.Schema())

	contributions := map[string]float64{
		features.FeatMedianDiff7d: 0.2,
		features.FeatAmount:       -0.2,
		features.FeatHourOfDay:    0.2,
	}

	got := e.Explain(map[string]float64{}, contributions, 3)
	require.Len(t, got, 3)

	// Equal magnitudes rank in schema order: amt, hour_of_day, median 7d.
	assert.Equal(t, features.FeatAmount, got[0].FeatureName)
	assert.Equal(t, features.FeatHourOfDay, got[1].FeatureName)
	assert.Equal(t, features.FeatMedianDiff7d, got[2].FeatureName)
}

func TestExplainTruncatesToTopK(t *testing.T) {
	e := NewExplainer(features.Schema())

	contributions := make(map[string]float64)
	for i, name := range features.Schema() {
		contributions[name] = float64(i+1) * 0.01
	}

	got := e.Explain(map[string]float64{}, contributions, 5)
	assert.Len(t, got, 5)

	got = e.Explain(map[string]float64{}, contributions, 100)
	assert.Len(t, got, len(features.Schema()))
}

func TestExplainDegradesWithoutContributions(t *testing.T) {
	e := NewExplainer(features.Schema())

	assert.Empty(t, e.Explain(map[string]float64{features.FeatAmount: 10}, nil, 5))
	assert.Empty(t, e.Explain(nil, map[string]float64{}, 5))
	assert.Empty(t, e.Explain(nil, map[string]float64{features.FeatAmount: 0.5}, 0))
}

func TestSeverityUsesFeatureThresholds(t *testing.T) {
	e := NewExplainer(features.Schema())
	ratio1h := features.LogPrefix + features.FeatAccountRatio1h

	tests := []struct {
		name         string
		contribution float64
		want         Severity
	}{
		{"below medium", 0.2, SeverityLow},
		{"at medium", 0.25, SeverityMedium},
		{"at high", 0.4, SeverityHigh},
		{"negative high", -0.5, SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Explain(map[string]float64{}, map[string]float64{ratio1h: tt.contribution}, 1)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Severity)
		})
	}
}

func TestUnknownFeatureFallsBack(t *testing.T) {
	e := NewExplainer([]string{"mystery_signal"})

	got := e.Explain(
		map[string]float64{"mystery_signal": 1.5},
		map[string]float64{"mystery_signal": 0.25},
		1,
	)
	require.Len(t, got, 1)

	assert.Equal(t, "Mystery Signal", got[0].Title)
	assert.Equal(t, "📊", got[0].Icon)
	assert.Equal(t, SeverityMedium, got[0].Severity)
}

func TestComputedTitles(t *testing.T) {
	ratio1h := features.LogPrefix + features.FeatAccountRatio1h
	count1h := features.LogPrefix + features.FeatCount1h

	tests := []struct {
		feature string
		value   float64
		want    string
	}{
		{ratio1h, math.Log1p(4.0), "Major spending spike detected"},
		{ratio1h, math.Log1p(2.0), "Unusual spending increase"},
		{ratio1h, math.Log1p(1.0), "Normal spending pattern"},
		{count1h, math.Log1p(7), "High transaction frequency"},
		{count1h, math.Log1p(3), "Elevated transaction frequency"},
		{count1h, math.Log1p(1), "Normal transaction frequency"},
		{features.FeatLateNightWindow, 1, "Late-night transaction"},
		{features.FeatLateNightWindow, 0, "Normal hours transaction"},
	}
	for _, tt := range tests {
		title, ok := computedTitle(tt.feature, tt.value)
		require.True(t, ok, tt.feature)
		assert.Equal(t, tt.want, title)
	}

	_, ok := computedTitle(features.FeatAmount, 100)
	assert.False(t, ok)
}

func TestComputedDetails(t *testing.T) {
	tests := []struct {
		feature string
		value   float64
		want    string
	}{
		{
			features.LogPrefix + features.FeatAccountRatio24h,
			math.Log1p(2.5),
			"Amount is 2.5x this account's typical spending over the last 24 hours",
		},
		{
			features.LogPrefix + features.FeatCategoryRatio7d,
			math.Log1p(1.3),
			"Amount is 1.3x the category average over the last week",
		},
		{
			features.LogPrefix + features.FeatCount24h,
			math.Log1p(6),
			"6 transactions in the last 24 hours",
		},
		{
			features.LogPrefix + features.FeatCount1h,
			math.Log1p(1),
			"1 transaction in the last hour",
		},
		{features.FeatMedianDiff1d, 42.5, "$42.50 above the median spending of the last day"},
		{features.FeatMedianDiff7d, -10.0, "$10.00 below the median spending of the last week"},
		{features.FeatMedianDiff7d, 0, "Matches the median spending of the last week"},
		{features.FeatHourOfDay, 2, "Transaction at 2:00 (late night)"},
		{features.FeatHourOfDay, 9, "Transaction at 9:00 (morning)"},
		{features.FeatHourOfDay, 15, "Transaction at 15:00 (afternoon)"},
		{features.FeatHourOfDay, 22, "Transaction at 22:00 (evening)"},
		{features.FeatAmount, 199.99, "Transaction amount of $199.99"},
		{features.FeatLateNightWindow, 1, "Transaction occurred during high-risk overnight hours (midnight to 4 AM)"},
		{features.FeatLateEveningWindow, 1, "Transaction occurred during late evening hours (10 PM to midnight)"},
	}
	for _, tt := range tests {
		detail, ok := computedDetail(tt.feature, tt.value)
		require.True(t, ok, tt.feature)
		assert.Equal(t, tt.want, detail, tt.feature)
	}
}

func TestExplainRoundsValues(t *testing.T) {
	e := NewExplainer(features.Schema())

	got := e.Explain(
		map[string]float64{features.FeatAmount: 123.456789},
		map[string]float64{features.FeatAmount: 0.123456},
		1,
	)
	require.Len(t, got, 1)
	assert.Equal(t, 0.123, got[0].Contribution)
	assert.Equal(t, 123.457, got[0].FeatureValue)
}
