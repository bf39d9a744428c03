package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists analyses in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed analysis store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the analyses table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id             VARCHAR(36) PRIMARY KEY,
			transaction_id VARCHAR(100) NOT NULL,
			classification VARCHAR(12) NOT NULL CHECK (classification IN ('legitimate', 'suspicious', 'fraudulent', 'unknown')),
			risk_score     NUMERIC(4,3) NOT NULL CHECK (risk_score >= 0 AND risk_score <= 1),
			risk_factors   JSONB NOT NULL DEFAULT '[]',
			explanation    TEXT NOT NULL DEFAULT '',
			model_version  VARCHAR(64) NOT NULL DEFAULT '',
			analyzed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_analyses_transaction_id
			ON analyses (transaction_id, analyzed_at DESC);

		CREATE INDEX IF NOT EXISTS idx_analyses_fraudulent
			ON analyses (analyzed_at DESC) WHERE classification = 'fraudulent';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, analysis *Analysis) error {
	factorsJSON, err := json.Marshal(analysis.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, transaction_id, classification, risk_score, risk_factors, explanation, model_version, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		analysis.ID,
		analysis.TransactionID,
		string(analysis.Classification),
		analysis.RiskScore,
		factorsJSON,
		analysis.Explanation,
		analysis.ModelVersion,
		analysis.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, classification, risk_score, risk_factors, explanation, model_version, analyzed_at
		FROM analyses
		ORDER BY analyzed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Analysis
	for rows.Next() {
		var a Analysis
		var factorsJSON []byte
		var analyzedAt time.Time

		if err := rows.Scan(&a.ID, &a.TransactionID, &a.Classification, &a.RiskScore, &factorsJSON, &a.Explanation, &a.ModelVersion, &analyzedAt); err != nil {
			continue
		}
		a.AnalyzedAt = analyzedAt
		_ = json.Unmarshal(factorsJSON, &a.RiskFactors)
		result = append(result, &a)
	}
	return result, nil
}
