// Package explain renders per-feature attribution scores as human-readable
// explanations.
//
// Each known feature maps to a template bundle (icon, title, detail, and
// severity thresholds on attribution magnitude). Feature families whose
// values are log-transformed get computed phrasing instead of templates:
// ratios and counts are exponentiated back to their natural scale before
// wording, window flags phrase as binary statements, and median deviations
// phrase sign-aware in currency.
package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Severity buckets an attribution's magnitude.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Attribution is one explained feature contribution.
type Attribution struct {
	FeatureName  string   `json:"featureName"`
	Contribution float64  `json:"contribution"` // signed, rounded to 3 decimals
	FeatureValue float64  `json:"featureValue"` // rounded to 3 decimals
	Title        string   `json:"title"`
	Detail       string   `json:"detail"`
	Icon         string   `json:"icon"`
	Severity     Severity `json:"severity"`
}

// thresholds are the low/medium/high cutoffs on |contribution|.
type thresholds struct {
	low, medium, high float64
}

// severityFor returns the highest tier whose cutoff |contribution|
// reaches, defaulting to low.
func (t thresholds) severityFor(contribution float64) Severity {
	abs := math.Abs(contribution)
	switch {
	case abs >= t.high:
		return SeverityHigh
	case abs >= t.medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// defaultThresholds apply to features without a registered template.
var defaultThresholds = thresholds{low: 0.1, medium: 0.2, high: 0.3}

// template is the static bundle for one known feature.
type template struct {
	icon       string
	title      string
	detail     string
	thresholds thresholds
}

// Explainer selects and phrases the top contributing features.
// Stateless and safe for concurrent use.
type Explainer struct {
	templates map[string]template
	order     []string // schema order, for deterministic tie-breaking
}

// NewExplainer builds an explainer for the given feature schema. The
// schema's ordering breaks ties between equal-magnitude contributions.
func NewExplainer(schema []string) *Explainer {
	order := make([]string, len(schema))
	copy(order, schema)
	return &Explainer{
		templates: featureTemplates(),
		order:     order,
	}
}

// Explain returns the topK features ranked by descending absolute
// contribution, each rendered for humans. If contributions is nil or the
// wrong width the explainer degrades to an empty list; scoring and the
// rule-based explanation still happen without it.
func (e *Explainer) Explain(values map[string]float64, contributions map[string]float64, topK int) []Attribution {
	if len(contributions) == 0 || topK <= 0 {
		return nil
	}

	ranked := make([]string, 0, len(e.order))
	for _, name := range e.order {
		if _, ok := contributions[name]; ok {
			ranked = append(ranked, name)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(contributions[ranked[i]]) > math.Abs(contributions[ranked[j]])
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]Attribution, 0, len(ranked))
	for _, name := range ranked {
		out = append(out, e.render(name, values[name], contributions[name]))
	}
	return out
}

// render produces one explained attribution.
func (e *Explainer) render(name string, value, contribution float64) Attribution {
	tpl, known := e.templates[name]
	if !known {
		tpl = template{
			icon:       "📊",
			title:      readableName(name),
			detail:     fmt.Sprintf("Value: %.2f", value),
			thresholds: defaultThresholds,
		}
	}

	a := Attribution{
		FeatureName:  name,
		Contribution: round3(contribution),
		FeatureValue: round3(value),
		Title:        tpl.title,
		Detail:       tpl.detail,
		Icon:         tpl.icon,
		Severity:     tpl.thresholds.severityFor(contribution),
	}

	if title, ok := computedTitle(name, value); ok {
		a.Title = title
	}
	if detail, ok := computedDetail(name, value); ok {
		a.Detail = detail
	}
	return a
}

// readableName converts a feature name to title case for the fallback.
func readableName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
