package scoring

import (
	"fmt"
	"strings"

	"github.com/mbd888/fraudsight/internal/explain"
	"github.com/mbd888/fraudsight/internal/features"
	"github.com/mbd888/fraudsight/internal/transaction"
)

// Rule cutoffs for the heuristic risk factors. These complement the
// model's attributions with checks an analyst would make by hand.
const (
	highAmountThreshold = 1000.0
	medianDiffThreshold = 500.0

	// Thresholds on the log-transformed features: log1p(7) ≈ 2.08 so
	// 2.0 means roughly seven transactions in the hour; 3.5 means
	// roughly thirty in the day.
	hourlyFrequencyLogThreshold = 2.0
	dailyFrequencyLogThreshold  = 3.5
	ratioLogThreshold           = 10.0
)

// riskyCategories flag merchant categories with elevated fraud rates.
var riskyCategories = []string{"misc_net", "online", "wire_transfer", "crypto", "gambling", "gift_card"}

// riskyLocations flag location descriptions that warrant extra scrutiny.
var riskyLocations = []string{"foreign", "international", "overseas", "unknown"}

// riskFactors derives the ordered human-readable factor list for one
// transaction: rule-derived factors first, then attribution titles,
// deduplicated by normalized text. probability drives the catch-all and
// the all-clear statements.
func riskFactors(tx *transaction.Transaction, vec features.Vector, probability float64, attributions []explain.Attribution) []string {
	var factors []string

	if f, ok := amountFactor(tx.Amount); ok {
		factors = append(factors, f)
	}
	if f, ok := categoryFactor(tx.NormalizedCategory()); ok {
		factors = append(factors, f)
	}
	if f, ok := timeOfDayFactor(vec); ok {
		factors = append(factors, f)
	}
	if f, ok := locationFactor(tx.Location); ok {
		factors = append(factors, f)
	}
	factors = append(factors, behaviorFactors(vec)...)

	for _, a := range attributions {
		if a.Severity == explain.SeverityLow {
			continue
		}
		factors = append(factors, a.Title)
	}

	factors = dedupeFactors(factors)

	if probability > 0.7 && len(factors) == 0 {
		factors = append(factors, "Complex pattern detected by model")
	}
	if probability < 0.3 {
		factors = append(factors, "Transaction consistent with normal spending patterns")
	}
	if len(factors) == 0 {
		factors = append(factors, "No significant risk factors detected")
	}
	return factors
}

func amountFactor(amount float64) (string, bool) {
	if amount >= highAmountThreshold {
		return fmt.Sprintf("High transaction amount ($%.2f)", amount), true
	}
	return "", false
}

func categoryFactor(category string) (string, bool) {
	for _, risky := range riskyCategories {
		if strings.Contains(category, risky) {
			return fmt.Sprintf("High-risk merchant category (%s)", category), true
		}
	}
	return "", false
}

func timeOfDayFactor(vec features.Vector) (string, bool) {
	if vec[features.FeatLateNightWindow] == 1 {
		return "Transaction occurred during high-risk overnight hours", true
	}
	return "", false
}

func locationFactor(location string) (string, bool) {
	lower := strings.ToLower(location)
	for _, risky := range riskyLocations {
		if strings.Contains(lower, risky) {
			return fmt.Sprintf("Transaction from flagged location (%s)", location), true
		}
	}
	return "", false
}

// behaviorFactors flag windowed-history anomalies from the normalized
// feature vector.
func behaviorFactors(vec features.Vector) []string {
	var factors []string

	if vec[features.LogPrefix+features.FeatCount1h] > hourlyFrequencyLogThreshold {
		factors = append(factors, "High transaction frequency in last hour")
	}
	if vec[features.LogPrefix+features.FeatCount24h] > dailyFrequencyLogThreshold {
		factors = append(factors, "Unusually high transaction volume in 24 hours")
	}
	if vec[features.LogPrefix+features.FeatAccountRatio1h] > ratioLogThreshold {
		factors = append(factors, "Transaction amount significantly above account's recent average")
	}
	if vec[features.LogPrefix+features.FeatCategoryRatio1h] > ratioLogThreshold {
		factors = append(factors, "Amount unusual for merchant category")
	}

	diff := vec[features.FeatMedianDiff7d]
	if diff > medianDiffThreshold {
		factors = append(factors, fmt.Sprintf("Amount $%.2f above recent median spending", diff))
	} else if diff < -medianDiffThreshold {
		factors = append(factors, fmt.Sprintf("Amount $%.2f below recent median spending", -diff))
	}
	return factors
}

// dedupeFactors removes repeats by case-insensitive trimmed text,
// keeping first occurrences in order.
func dedupeFactors(factors []string) []string {
	seen := make(map[string]struct{}, len(factors))
	out := factors[:0]
	for _, f := range factors {
		key := strings.ToLower(strings.TrimSpace(f))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
