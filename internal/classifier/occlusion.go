package classifier

import "context"

// OcclusionAttributor derives per-feature contributions from any Classifier
// by re-scoring each row with one feature zeroed at a time. The contribution
// of a feature is the probability drop it causes when removed, so the signs
// follow the model's own behavior rather than a surrogate.
//
// Cost is one Predict call per feature plus one baseline call, which is fine
// for the batch sizes the policy gate admits.
type OcclusionAttributor struct {
	model Classifier
}

// NewOcclusionAttributor wraps a classifier for attribution.
func NewOcclusionAttributor(model Classifier) *OcclusionAttributor {
	return &OcclusionAttributor{model: model}
}

// Attribute returns, per row, one signed contribution per feature in schema
// order. The matrix is not modified.
func (a *OcclusionAttributor) Attribute(ctx context.Context, matrix [][]float64) ([][]float64, error) {
	if len(matrix) == 0 {
		return nil, nil
	}

	baseline, err := a.model.Predict(ctx, matrix)
	if err != nil {
		return nil, err
	}

	width := len(matrix[0])
	contributions := make([][]float64, len(matrix))
	for i := range contributions {
		contributions[i] = make([]float64, width)
	}

	occluded := make([][]float64, len(matrix))
	for i, row := range matrix {
		occluded[i] = make([]float64, width)
		copy(occluded[i], row)
	}

	for col := 0; col < width; col++ {
		saved := make([]float64, len(matrix))
		for i := range occluded {
			saved[i] = occluded[i][col]
			occluded[i][col] = 0
		}

		probs, err := a.model.Predict(ctx, occluded)
		if err != nil {
			return nil, err
		}
		if len(probs) != len(baseline) {
			return nil, ErrUnavailable
		}

		for i := range probs {
			contributions[i][col] = baseline[i] - probs[i]
			occluded[i][col] = saved[i]
		}
	}

	return contributions, nil
}
