package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/fraudsight/internal/classifier"
	"github.com/mbd888/fraudsight/internal/explain"
	"github.com/mbd888/fraudsight/internal/features"
	"github.com/mbd888/fraudsight/internal/idgen"
	"github.com/mbd888/fraudsight/internal/metrics"
	"github.com/mbd888/fraudsight/internal/policy"
	"github.com/mbd888/fraudsight/internal/traces"
	"github.com/mbd888/fraudsight/internal/transaction"
)

// defaultTopK is the number of attributions attached per transaction.
const defaultTopK = 5

// unknownRiskScore is reported when the classifier cannot score a
// transaction. Unknown is never mapped to legitimate.
const unknownRiskScore = 0.5

// Engine runs the full analysis pipeline over transaction batches.
// Safe for concurrent use once constructed.
type Engine struct {
	gate       *policy.Gate
	aggregator *features.Aggregator
	normalizer *features.Normalizer
	model      classifier.Classifier
	attributor classifier.Attributor
	explainer  *explain.Explainer
	store      Store
	logger     *slog.Logger
	topK       int
}

// NewEngine creates an analysis engine around the given classifier.
func NewEngine(model classifier.Classifier, store Store) *Engine {
	normalizer := features.NewNormalizer()
	return &Engine{
		gate:       policy.NewGate(policy.DefaultConfig()),
		aggregator: features.NewAggregator(),
		normalizer: normalizer,
		model:      model,
		explainer:  explain.NewExplainer(normalizer.Schema()),
		store:      store,
		logger:     slog.Default(),
		topK:       defaultTopK,
	}
}

// WithPolicy overrides the default policy gate configuration.
func (e *Engine) WithPolicy(cfg policy.Config) *Engine {
	e.gate = policy.NewGate(cfg)
	return e
}

// WithAttributor enables per-feature attribution explanations. Without
// one, explanations degrade to rule-derived factors only.
func (e *Engine) WithAttributor(a classifier.Attributor) *Engine {
	e.attributor = a
	return e
}

// WithLogger overrides the default logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// WithTopK overrides the number of attributions per transaction.
func (e *Engine) WithTopK(k int) *Engine {
	e.topK = k
	return e
}

// Analyze validates, gates, and scores a batch. A policy refusal is a
// successful outcome carried in the result, not an error. Errors are
// reserved for malformed input and internal failures that prevent any
// scoring. Classifier failures degrade every transaction to unknown and
// surface as batch warnings.
func (e *Engine) Analyze(ctx context.Context, batch []transaction.Transaction) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "scoring.Analyze", traces.BatchSize(len(batch)))
	defer span.End()
	timer := prometheus.NewTimer(metrics.AnalysisDuration)
	defer timer.ObserveDuration()

	if err := transaction.ValidateBatch(batch); err != nil {
		metrics.BatchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if refusal := e.gate.Evaluate(batch); refusal != nil {
		span.SetAttributes(traces.RefusalReason(refusal.Reason))
		metrics.BatchesTotal.WithLabelValues("refused").Inc()
		metrics.RefusalsTotal.WithLabelValues(refusal.Reason).Inc()
		e.logger.Info("batch refused", "reason", refusal.Reason, "size", len(batch))
		return &Result{Refusal: refusal}, nil
	}

	raws, err := e.aggregator.Aggregate(batch)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	vecs, matrix, err := e.normalizeBatch(raws)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	var warnings []string
	probs, err := e.model.Predict(ctx, matrix)
	if err != nil {
		probs = nil
		warnings = append(warnings, fmt.Sprintf("classifier unavailable, transactions classified as unknown: %v", err))
		e.logger.Warn("classifier unavailable", "error", err)
	} else if len(probs) != len(batch) {
		warnings = append(warnings, fmt.Sprintf("classifier returned %d probabilities for %d transactions, classified as unknown", len(probs), len(batch)))
		probs = nil
	}

	contribs := e.attribute(ctx, matrix, probs != nil)

	now := time.Now().UTC()
	version := e.model.Version()
	span.SetAttributes(traces.ModelVersion(version))
	schema := e.normalizer.Schema()
	analyses := make([]Analysis, len(batch))
	for i := range batch {
		tx := &batch[i]
		if probs == nil {
			analyses[i] = unknownAnalysis(tx, version, now)
		} else {
			var attrs []explain.Attribution
			if contribs != nil {
				attrs = e.explainer.Explain(vecs[i], contribRow(schema, contribs[i]), e.topK)
			}
			score := clampScore(probs[i])
			class := Classify(score)
			factors := riskFactors(tx, vecs[i], score, attrs)
			analyses[i] = Analysis{
				ID:             idgen.WithPrefix("ana_"),
				TransactionID:  tx.ID,
				Classification: class,
				RiskScore:      score,
				RiskFactors:    factors,
				Explanation:    narrative(tx.Amount, tx.MerchantName, class, score, factors),
				Attributions:   attrs,
				ModelVersion:   version,
				AnalyzedAt:     now,
			}
		}
		metrics.ClassificationsTotal.WithLabelValues(string(analyses[i].Classification)).Inc()
	}

	e.persist(analyses)
	metrics.BatchesTotal.WithLabelValues("analyzed").Inc()

	return &Result{
		Analyses: analyses,
		Summary:  summarize(analyses),
		Warnings: warnings,
	}, nil
}

// Recent returns the most recently persisted analyses.
func (e *Engine) Recent(ctx context.Context, limit int) ([]*Analysis, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListRecent(ctx, limit)
}

// normalizeBatch produces both the per-row normalized vectors (for factor
// rules and explanations) and the dense matrix the classifier consumes.
func (e *Engine) normalizeBatch(raws []features.Vector) ([]features.Vector, [][]float64, error) {
	schema := e.normalizer.Schema()
	vecs := make([]features.Vector, len(raws))
	matrix := make([][]float64, len(raws))
	for i, raw := range raws {
		vec, err := e.normalizer.Normalize(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		row := make([]float64, len(schema))
		for j, name := range schema {
			row[j] = vec[name]
		}
		vecs[i] = vec
		matrix[i] = row
	}
	return vecs, matrix, nil
}

// attribute asks the attributor for per-feature contributions. Any
// failure degrades silently: explanations are optional.
func (e *Engine) attribute(ctx context.Context, matrix [][]float64, scored bool) [][]float64 {
	if e.attributor == nil || !scored {
		return nil
	}
	contribs, err := e.attributor.Attribute(ctx, matrix)
	if err != nil {
		e.logger.Debug("attribution unavailable", "error", err)
		return nil
	}
	if len(contribs) != len(matrix) {
		return nil
	}
	return contribs
}

// persist records analyses asynchronously (best-effort audit trail).
func (e *Engine) persist(analyses []Analysis) {
	if e.store == nil {
		return
	}
	for i := range analyses {
		a := analyses[i]
		go func() {
			if err := e.store.Record(context.Background(), &a); err != nil {
				e.logger.Warn("analysis persistence failed", "analysisId", a.ID, "error", err)
			}
		}()
	}
}

func unknownAnalysis(tx *transaction.Transaction, version string, now time.Time) Analysis {
	return Analysis{
		ID:             idgen.WithPrefix("ana_"),
		TransactionID:  tx.ID,
		Classification: ClassUnknown,
		RiskScore:      unknownRiskScore,
		RiskFactors:    []string{"Analysis unavailable"},
		Explanation:    "Unable to complete fraud analysis: classifier unavailable.",
		ModelVersion:   version,
		AnalyzedAt:     now,
	}
}

// contribRow maps one attribution row onto feature names in schema order.
func contribRow(schema []string, row []float64) map[string]float64 {
	if len(row) != len(schema) {
		return nil
	}
	out := make(map[string]float64, len(schema))
	for i, name := range schema {
		out[name] = row[i]
	}
	return out
}
