// Package classifier defines the boundary to the trained fraud model.
//
// The pipeline treats the model as an opaque function from a feature
// matrix to per-row fraud probabilities. The concrete implementation here
// wraps an exported ONNX graph; tests substitute fakes. Attribution (the
// per-feature contribution scores behind the explanations) is a separate,
// optional collaborator: its absence degrades explanation quality, never
// scoring.
package classifier

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the classifier could not be loaded or invoked.
	// Scoring falls back to the unknown classification with a warning.
	ErrUnavailable = errors.New("classifier: unavailable")

	// ErrBadInput means the feature matrix does not match the model's
	// expected width.
	ErrBadInput = errors.New("classifier: input does not match model schema")
)

// Classifier scores feature matrices. Implementations must be safe for
// concurrent use once initialized.
type Classifier interface {
	// Predict returns one fraud probability in [0,1] per input row. The
	// matrix columns must follow the schema declared by FeatureNames.
	Predict(ctx context.Context, matrix [][]float64) ([]float64, error)

	// FeatureNames returns the feature schema the model was trained on,
	// in column order.
	FeatureNames() []string

	// Version identifies the model artifact for persistence tagging.
	Version() string
}

// Attributor produces signed per-feature contribution scores for each
// prediction, summing approximately to prediction − baseline. Optional.
type Attributor interface {
	// Attribute returns, per input row, one signed contribution per
	// feature in the same column order as the prediction matrix.
	Attribute(ctx context.Context, matrix [][]float64) ([][]float64, error)
}
