package scoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudsight/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &Analysis{
			ID:             fmt.Sprintf("ana_pg_%d", i),
			TransactionID:  fmt.Sprintf("tx-%d", i),
			Classification: ClassSuspicious,
			RiskScore:      0.55,
			RiskFactors:    []string{"High transaction amount ($2500.00)"},
			Explanation:    "This $2500.00 transaction at Shop is classified as suspicious (risk score: 55.0%).",
			ModelVersion:   "stub-v1",
			AnalyzedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := store.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	// Most recent first.
	assert.Equal(t, "ana_pg_4", recent[0].ID)
	assert.Equal(t, "ana_pg_2", recent[2].ID)

	got := recent[0]
	assert.Equal(t, "tx-4", got.TransactionID)
	assert.Equal(t, ClassSuspicious, got.Classification)
	assert.Equal(t, 0.55, got.RiskScore)
	assert.Equal(t, []string{"High transaction amount ($2500.00)"}, got.RiskFactors)
	assert.Equal(t, "stub-v1", got.ModelVersion)
}

func TestPostgresStoreMigrateIdempotent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	// Migrate on top of an already-migrated schema must be a no-op.
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
}
