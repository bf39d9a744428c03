// Package scoring maps classifier probabilities to fraud verdicts and
// composes the human-facing explanation for each transaction.
//
// The engine orchestrates the whole analysis pipeline: policy gate,
// feature aggregation and normalization, classifier invocation, optional
// attribution, and the final narrative. Classifier failures degrade a
// transaction to the unknown class with a batch warning rather than
// failing the batch.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mbd888/fraudsight/internal/explain"
	"github.com/mbd888/fraudsight/internal/policy"
)

// Classification is the engine's verdict on a single transaction.
type Classification string

const (
	ClassLegitimate Classification = "legitimate"
	ClassSuspicious Classification = "suspicious"
	ClassFraudulent Classification = "fraudulent"
	ClassUnknown    Classification = "unknown"
)

// Probability thresholds for the three-tier verdict.
const (
	SuspiciousThreshold = 0.45
	FraudulentThreshold = 0.75
)

// Classify maps a fraud probability to a verdict. It is a pure function
// of the probability.
func Classify(probability float64) Classification {
	switch {
	case probability >= FraudulentThreshold:
		return ClassFraudulent
	case probability >= SuspiciousThreshold:
		return ClassSuspicious
	default:
		return ClassLegitimate
	}
}

// Analysis is the engine's result for one transaction.
type Analysis struct {
	ID             string                `json:"id"`
	TransactionID  string                `json:"transactionId"`
	Classification Classification        `json:"classification"`
	RiskScore      float64               `json:"riskScore"` // rounded to 3 decimals, in [0,1]
	RiskFactors    []string              `json:"riskFactors"`
	Explanation    string                `json:"explanation"`
	Attributions   []explain.Attribution `json:"attributions,omitempty"`
	ModelVersion   string                `json:"modelVersion"`
	AnalyzedAt     time.Time             `json:"analyzedAt"`
}

// BatchSummary aggregates a batch's verdicts.
type BatchSummary struct {
	TotalTransactions int     `json:"totalTransactions"`
	FraudulentCount   int     `json:"fraudulentCount"`
	SuspiciousCount   int     `json:"suspiciousCount"`
	LegitimateCount   int     `json:"legitimateCount"`
	UnknownCount      int     `json:"unknownCount"`
	AverageRiskScore  float64 `json:"averageRiskScore"`
	Summary           string  `json:"summary"`
}

// Result is the engine's output for one batch. Either Refusal is set and
// nothing else, or the batch was analyzed.
type Result struct {
	Refusal  *policy.Refusal `json:"refusal,omitempty"`
	Analyses []Analysis      `json:"analyses,omitempty"`
	Summary  BatchSummary    `json:"summary"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Refused reports whether the batch was rejected by the policy gate.
func (r *Result) Refused() bool { return r.Refusal != nil }

// summarize builds the batch summary from the finished analyses.
func summarize(analyses []Analysis) BatchSummary {
	s := BatchSummary{TotalTransactions: len(analyses)}

	var total float64
	for _, a := range analyses {
		total += a.RiskScore
		switch a.Classification {
		case ClassFraudulent:
			s.FraudulentCount++
		case ClassSuspicious:
			s.SuspiciousCount++
		case ClassLegitimate:
			s.LegitimateCount++
		default:
			s.UnknownCount++
		}
	}
	if len(analyses) > 0 {
		s.AverageRiskScore = round3(total / float64(len(analyses)))
	}

	s.Summary = fmt.Sprintf("Analyzed %d transactions: %d fraudulent, %d suspicious, %d legitimate. Average risk score: %.1f%%.",
		s.TotalTransactions, s.FraudulentCount, s.SuspiciousCount, s.LegitimateCount, s.AverageRiskScore*100)
	switch {
	case s.FraudulentCount > 0:
		s.Summary += " Immediate action required for fraudulent transactions."
	case s.SuspiciousCount > 0:
		s.Summary += " Review recommended for suspicious transactions."
	default:
		s.Summary += " All transactions appear safe."
	}
	return s
}

// narrative composes the per-transaction explanation string.
func narrative(amount float64, merchant string, class Classification, riskScore float64, factors []string) string {
	text := fmt.Sprintf("This $%.2f transaction at %s is classified as %s (risk score: %.1f%%).",
		amount, merchant, string(class), riskScore*100)
	if len(factors) > 0 {
		text += " Key concerns: " + strings.Join(factors, ", ") + "."
	}
	return text
}

// clampScore rounds a probability to 3 decimals and clamps it to [0,1].
func clampScore(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return round3(p)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
