package explain

import (
	"fmt"
	"math"
	"strings"

	"github.com/mbd888/fraudsight/internal/features"
)

// windowPhrase maps a window suffix to prose.
var windowPhrase = map[string]string{
	"1h":  "the last hour",
	"24h": "the last 24 hours",
	"7d":  "the last week",
	"1d":  "the last day",
}

// computedTitle rewords the template title for features whose value alone
// determines what happened. Returns false when the template title stands.
func computedTitle(name string, value float64) (string, bool) {
	switch name {
	case features.LogPrefix + features.FeatAccountRatio1h:
		ratio := math.Expm1(value)
		switch {
		case ratio > 3:
			return "Major spending spike detected", true
		case ratio > 1.5:
			return "Unusual spending increase", true
		default:
			return "Normal spending pattern", true
		}
	case features.LogPrefix + features.FeatCount1h:
		count := int(math.Round(math.Expm1(value)))
		switch {
		case count > 5:
			return "High transaction frequency", true
		case count > 2:
			return "Elevated transaction frequency", true
		default:
			return "Normal transaction frequency", true
		}
	case features.FeatLateNightWindow:
		if value >= 0.5 {
			return "Late-night transaction", true
		}
		return "Normal hours transaction", true
	}
	return "", false
}

// computedDetail rewords the template detail with the feature's actual
// value. Log-transformed families are inverted via expm1 first so the
// prose speaks in natural units.
func computedDetail(name string, value float64) (string, bool) {
	if window, ok := ratioWindow(name, features.FeatAccountRatio1h, features.FeatAccountRatio24h, features.FeatAccountRatio7d); ok {
		return fmt.Sprintf("Amount is %.1fx this account's typical spending over %s", math.Expm1(value), windowPhrase[window]), true
	}
	if window, ok := ratioWindow(name, features.FeatCategoryRatio1h, features.FeatCategoryRatio24h, features.FeatCategoryRatio7d); ok {
		return fmt.Sprintf("Amount is %.1fx the category average over %s", math.Expm1(value), windowPhrase[window]), true
	}
	if window, ok := ratioWindow(name, features.FeatCount1h, features.FeatCount24h, features.FeatCount7d); ok {
		count := int(math.Round(math.Expm1(value)))
		noun := "transactions"
		if count == 1 {
			noun = "transaction"
		}
		return fmt.Sprintf("%d %s in %s", count, noun, windowPhrase[window]), true
	}

	switch name {
	case features.FeatMedianDiff1d, features.FeatMedianDiff7d:
		window := "the last week"
		if name == features.FeatMedianDiff1d {
			window = "the last day"
		}
		switch {
		case value > 0:
			return fmt.Sprintf("$%.2f above the median spending of %s", value, window), true
		case value < 0:
			return fmt.Sprintf("$%.2f below the median spending of %s", -value, window), true
		default:
			return fmt.Sprintf("Matches the median spending of %s", window), true
		}
	case features.FeatLateNightWindow:
		if value >= 0.5 {
			return "Transaction occurred during high-risk overnight hours (midnight to 4 AM)", true
		}
		return "Transaction occurred outside the overnight window", true
	case features.FeatLateEveningWindow:
		if value >= 0.5 {
			return "Transaction occurred during late evening hours (10 PM to midnight)", true
		}
		return "Transaction occurred outside the late evening window", true
	case features.FeatHourOfDay:
		hour := int(value)
		return fmt.Sprintf("Transaction at %d:00 (%s)", hour, dayPeriod(hour)), true
	case features.FeatAmount:
		return fmt.Sprintf("Transaction amount of $%.2f", value), true
	}
	return "", false
}

// ratioWindow reports whether name is the log-transformed form of one of
// the given raw features, returning its window suffix.
func ratioWindow(name string, candidates ...string) (string, bool) {
	for _, c := range candidates {
		if name == features.LogPrefix+c {
			return c[strings.LastIndexByte(c, '_')+1:], true
		}
	}
	return "", false
}

func dayPeriod(hour int) string {
	switch {
	case hour < 6:
		return "late night"
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
