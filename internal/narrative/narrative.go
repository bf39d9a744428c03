// Package narrative generates analyst-style prose explanations for
// finished analyses using Gemini.
//
// The service is optional: without an API key it reports unavailable and
// callers fall back to the engine's templated explanation. Calls are
// wrapped in a circuit breaker and retried with backoff.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mbd888/fraudsight/internal/circuitbreaker"
	"github.com/mbd888/fraudsight/internal/metrics"
	"github.com/mbd888/fraudsight/internal/retry"
	"github.com/mbd888/fraudsight/internal/scoring"
	"github.com/mbd888/fraudsight/internal/traces"
	"github.com/mbd888/fraudsight/internal/transaction"
)

// ErrUnavailable is returned when no LLM backend is configured or the
// circuit is open.
var ErrUnavailable = errors.New("narrative: service unavailable")

const (
	defaultModel = "gemini-2.0-flash"

	breakerKey       = "gemini"
	breakerThreshold = 5
	breakerOpenFor   = 30 * time.Second

	maxAttempts = 3
	baseDelay   = 500 * time.Millisecond
)

const systemPrompt = `You are an expert fraud detection analyst. Explain fraud predictions in clear, professional language that both technical and non-technical users can understand.

Rules:
1. Be concise but thorough
2. Focus on the most important risk factors
3. Use plain English, avoid jargon
4. Do not make definitive fraud accusations, use probability language
5. Explain what the risk factors mean in practical terms`

// Service generates narratives through the Gemini API.
type Service struct {
	client  *genai.Client
	model   string
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// New creates a narrative service. An empty apiKey yields a service that
// reports unavailable rather than an error, so the rest of the pipeline
// runs without LLM access.
func New(ctx context.Context, apiKey string, logger *slog.Logger) (*Service, error) {
	s := &Service{
		model:   defaultModel,
		breaker: circuitbreaker.New(breakerThreshold, breakerOpenFor),
		logger:  logger,
	}
	if apiKey == "" {
		logger.Info("narrative service disabled (no GEMINI_API_KEY set)")
		return s, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("narrative: create client: %w", err)
	}
	s.client = client
	logger.Info("narrative service enabled", "model", s.model)
	return s, nil
}

// WithModel overrides the default model name.
func (s *Service) WithModel(model string) *Service {
	s.model = model
	return s
}

// Available reports whether narratives can be generated right now. The
// check is read-only: only Explain may consume the circuit's recovery
// probe, never a health poll.
func (s *Service) Available() bool {
	return s.client != nil && s.breaker.State(breakerKey) != circuitbreaker.StateOpen
}

// Explain generates a prose explanation for one analysis. Callers should
// fall back to analysis.Explanation when this fails.
func (s *Service) Explain(ctx context.Context, tx *transaction.Transaction, analysis *scoring.Analysis) (string, error) {
	ctx, span := traces.StartSpan(ctx, "narrative.Explain",
		traces.TransactionID(tx.ID),
		traces.Classification(string(analysis.Classification)))
	defer span.End()

	if s.client == nil {
		return "", ErrUnavailable
	}
	if !s.breaker.Allow(breakerKey) {
		metrics.NarrativeRequestsTotal.WithLabelValues("circuit_open").Inc()
		return "", ErrUnavailable
	}

	prompt := explainPrompt(tx, analysis)

	var text string
	err := retry.Do(ctx, maxAttempts, baseDelay, func() error {
		out, err := s.generate(ctx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		s.breaker.RecordFailure(breakerKey)
		metrics.NarrativeRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("narrative: generate explanation: %w", err)
	}

	s.breaker.RecordSuccess(breakerKey)
	metrics.NarrativeRequestsTotal.WithLabelValues("success").Inc()
	return text, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

// explainPrompt renders the transaction, verdict, and factor list the way
// an analyst would want them summarized.
func explainPrompt(tx *transaction.Transaction, analysis *scoring.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Explain why this transaction received a fraud probability of %.1f%%.\n\n", analysis.RiskScore*100)

	b.WriteString("Transaction Details:\n")
	fmt.Fprintf(&b, "- ID: %s\n", tx.ID)
	fmt.Fprintf(&b, "- Amount: $%.2f\n", tx.Amount)
	fmt.Fprintf(&b, "- Merchant: %s\n", tx.MerchantName)
	fmt.Fprintf(&b, "- Category: %s\n", tx.Category)
	if tx.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", tx.Location)
	}
	fmt.Fprintf(&b, "- Timestamp: %s\n", tx.Timestamp.Format(time.RFC3339))

	b.WriteString("\nModel Prediction:\n")
	fmt.Fprintf(&b, "- Fraud Probability: %.1f%%\n", analysis.RiskScore*100)
	fmt.Fprintf(&b, "- Classification: %s\n", analysis.Classification)

	b.WriteString("\nKey Risk Factors:\n")
	for _, f := range analysis.RiskFactors {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	b.WriteString("\nProvide a clear, professional explanation of why this transaction was flagged with this risk level. Focus on the most significant factors and what they mean in practical terms.")
	return b.String()
}
