package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrSchemaMismatch is returned when a normalized vector does not match
// the classifier's declared schema. Mismatches are a hard error: silently
// continuing risks feeding misaligned columns to the classifier.
var ErrSchemaMismatch = errors.New("features: schema mismatch")

// Normalizer finalizes raw aggregate vectors into classifier input.
type Normalizer struct {
	schema []string
}

// NewNormalizer returns a normalizer targeting the canonical schema.
func NewNormalizer() *Normalizer {
	return &Normalizer{schema: Schema()}
}

// Schema returns the feature names, in column order, that Normalize and
// Matrix produce. Classifier implementations are validated against it.
func (n *Normalizer) Schema() []string {
	out := make([]string, len(n.schema))
	copy(out, n.schema)
	return out
}

// Normalize produces the final feature vector for one transaction:
//
//   - Absent aggregates fill with 0.0 ("no prior activity", not missing
//     data).
//   - Each right-skewed count/ratio feature x becomes log_x = log1p(max(x,
//     0)); the untransformed original is dropped.
//   - Identifier and non-schema values are dropped.
//
// The result contains exactly the schema's names with finite values.
func (n *Normalizer) Normalize(raw Vector) (Vector, error) {
	out := make(Vector, len(n.schema))

	for _, f := range skewedFeatures {
		x := fill(raw[f])
		out[LogPrefix+f] = math.Log1p(math.Max(x, 0))
	}

	for _, name := range n.schema {
		if strings.HasPrefix(name, LogPrefix) {
			continue // already transformed above
		}
		out[name] = fill(raw[name])
	}

	return out, n.validate(out)
}

// Matrix normalizes a batch of raw vectors into a dense row-major matrix
// with columns in schema order, ready for the classifier.
func (n *Normalizer) Matrix(raws []Vector) ([][]float64, error) {
	matrix := make([][]float64, len(raws))
	for i, raw := range raws {
		vec, err := n.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		row := make([]float64, len(n.schema))
		for j, name := range n.schema {
			row[j] = vec[name]
		}
		matrix[i] = row
	}
	return matrix, nil
}

// validate checks the vector against the schema, reporting every missing
// and extra name rather than just the first.
func (n *Normalizer) validate(vec Vector) error {
	var missing, extra []string

	for _, name := range n.schema {
		v, ok := vec[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: feature %s is not finite", ErrSchemaMismatch, name)
		}
	}

	if len(vec) != len(n.schema) || len(missing) > 0 {
		want := make(map[string]bool, len(n.schema))
		for _, name := range n.schema {
			want[name] = true
		}
		for name := range vec {
			if !want[name] {
				extra = append(extra, name)
			}
		}
		sort.Strings(missing)
		sort.Strings(extra)
		if len(missing) > 0 || len(extra) > 0 {
			return fmt.Errorf("%w: missing=%v extra=%v", ErrSchemaMismatch, missing, extra)
		}
	}
	return nil
}

// fill maps NaN/Inf to 0.0. Aggregates never produce these on their own,
// but vectors arriving from outside the aggregator might.
func fill(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
