// Package policy implements the pre-scoring validation gate.
//
// Every batch passes through three checks before any feature computation:
// a batch-size cap, a statistical excess-PII threshold, and prompt-injection
// signature scanning over the free-text fields. A failed check produces a
// Refusal, which is a terminal pipeline outcome, not an error.
package policy

import (
	"fmt"
	"regexp"

	"github.com/mbd888/fraudsight/internal/transaction"
)

// Refusal reasons.
const (
	ReasonBatchTooLarge = "Batch Size Exceeded"
	ReasonExcessPII     = "PII Policy Violation"
	ReasonInjection     = "Security Policy Violation"
)

// Refusal communicates that a batch was rejected by policy.
type Refusal struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

// Config controls the gate. Zero value is not usable; call DefaultConfig.
type Config struct {
	MaxBatchSize     int  // refuse batches larger than this
	MaxPIIFields     int  // per-transaction PII field cap
	PIIPolicyEnabled bool // toggle the statistical PII check
	InjectionEnabled bool // toggle signature scanning
}

// DefaultConfig returns the standard policy configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:     100,
		MaxPIIFields:     2,
		PIIPolicyEnabled: true,
		InjectionEnabled: true,
	}
}

// piiViolationFraction is the fraction of violating transactions above
// which the whole batch is refused. A batch with a few violators passes.
const piiViolationFraction = 0.1

// injectionSignatures are the prompt-injection patterns scanned over
// merchant names and device fingerprints. Compiled case-insensitively
// into a single alternation.
var injectionSignatures = []string{
	`ignore\s+(previous|all|your)\s+instructions?`,
	`system\s*prompt`,
	`you\s+are\s+now`,
	`forget\s+(everything|all|previous)`,
	`new\s+instructions?:`,
	`<\|.*?\|>`,        // special model tokens
	`\\x[0-9a-f]{2}`,   // hex escape sequences
	`&#\d+;`,           // HTML entities
	`eval\(`,
	`exec\(`,
	`__import__`,
}

// Gate evaluates batches against the configured policy rules.
// It is pure and safe for concurrent use.
type Gate struct {
	cfg       Config
	injection *regexp.Regexp
}

// NewGate compiles the signature set and returns a ready gate.
func NewGate(cfg Config) *Gate {
	pattern := "(?i)(?:" + injectionSignatures[0]
	for _, sig := range injectionSignatures[1:] {
		pattern += "|" + sig
	}
	pattern += ")"
	return &Gate{
		cfg:       cfg,
		injection: regexp.MustCompile(pattern),
	}
}

// Evaluate runs all policy checks over the batch. It returns nil when the
// batch passes, or the first applicable Refusal. Checks run in a fixed
// order: batch size, PII, injection. Injection scanning reports the first
// offending transaction in input order.
func (g *Gate) Evaluate(batch []transaction.Transaction) *Refusal {
	if len(batch) > g.cfg.MaxBatchSize {
		return &Refusal{
			Reason: ReasonBatchTooLarge,
			Details: fmt.Sprintf("Maximum %d transactions allowed per request. Received %d transactions.",
				g.cfg.MaxBatchSize, len(batch)),
		}
	}

	if r := g.checkPII(batch); r != nil {
		return r
	}

	return g.checkInjection(batch)
}

// checkPII refuses the batch when the fraction of transactions carrying
// more than MaxPIIFields optional PII fields exceeds the statistical
// threshold. Individual violators do not fail on their own.
func (g *Gate) checkPII(batch []transaction.Transaction) *Refusal {
	if !g.cfg.PIIPolicyEnabled {
		return nil
	}

	violations := 0
	for i := range batch {
		if batch[i].PIIFieldCount() > g.cfg.MaxPIIFields {
			violations++
		}
	}

	if float64(violations) > float64(len(batch))*piiViolationFraction {
		return &Refusal{
			Reason: ReasonExcessPII,
			Details: fmt.Sprintf("%d transactions contain excessive PII fields. Maximum %d PII fields allowed per transaction.",
				violations, g.cfg.MaxPIIFields),
		}
	}
	return nil
}

// checkInjection scans merchant names and device fingerprints for
// injection signatures, refusing on the first match in input order.
func (g *Gate) checkInjection(batch []transaction.Transaction) *Refusal {
	if !g.cfg.InjectionEnabled {
		return nil
	}

	for i := range batch {
		tx := &batch[i]
		if g.injection.MatchString(tx.MerchantName) {
			return &Refusal{
				Reason: ReasonInjection,
				Details: fmt.Sprintf("Potential prompt injection detected in transaction %s merchant name. Request refused for security reasons.",
					tx.ID),
			}
		}
		if tx.DeviceFingerprint != "" && g.injection.MatchString(tx.DeviceFingerprint) {
			return &Refusal{
				Reason: ReasonInjection,
				Details: fmt.Sprintf("Potential prompt injection detected in transaction %s device fingerprint. Request refused for security reasons.",
					tx.ID),
			}
		}
	}
	return nil
}
