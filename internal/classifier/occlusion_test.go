package classifier

import (
	"context"
	"math"
	"testing"
)

// sumModel scores rows by a weighted sum, so each feature's occlusion
// effect is exactly its weighted value.
type sumModel struct {
	weights []float64
}

func (m *sumModel) Predict(_ context.Context, matrix [][]float64) ([]float64, error) {
	out := make([]float64, len(matrix))
	for i, row := range matrix {
		var sum float64
		for j, v := range row {
			sum += m.weights[j] * v
		}
		out[i] = sum
	}
	return out, nil
}

func (m *sumModel) FeatureNames() []string { return []string{"a", "b", "c"} }
func (m *sumModel) Version() string        { return "sum-test" }

func TestOcclusionAttributeLinearModel(t *testing.T) {
	model := &sumModel{weights: []float64{0.5, -0.2, 0.1}}
	attr := NewOcclusionAttributor(model)

	matrix := [][]float64{
		{1.0, 2.0, 3.0},
		{0.0, 1.0, 0.0},
	}

	contributions, err := attr.Attribute(context.Background(), matrix)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}

	expected := [][]float64{
		{0.5, -0.4, 0.3},
		{0.0, -0.2, 0.0},
	}
	for i, row := range expected {
		for j, want := range row {
			if math.Abs(contributions[i][j]-want) > 1e-9 {
				t.Errorf("contribution[%d][%d] = %v, want %v", i, j, contributions[i][j], want)
			}
		}
	}
}

func TestOcclusionAttributeRestoresMatrix(t *testing.T) {
	model := &sumModel{weights: []float64{1, 1, 1}}
	attr := NewOcclusionAttributor(model)

	matrix := [][]float64{{1.0, 2.0, 3.0}}
	if _, err := attr.Attribute(context.Background(), matrix); err != nil {
		t.Fatalf("Attribute: %v", err)
	}

	want := []float64{1.0, 2.0, 3.0}
	for j, v := range matrix[0] {
		if v != want[j] {
			t.Errorf("matrix[0][%d] mutated: got %v, want %v", j, v, want[j])
		}
	}
}

func TestOcclusionAttributeEmptyMatrix(t *testing.T) {
	attr := NewOcclusionAttributor(&sumModel{weights: []float64{1}})
	contributions, err := attr.Attribute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if contributions != nil {
		t.Errorf("expected nil contributions for empty matrix, got %v", contributions)
	}
}
