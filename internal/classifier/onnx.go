package classifier

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Default tensor names for gradient-boosted models exported via the
// standard sklearn/xgboost ONNX converters.
const (
	defaultInputName  = "float_input"
	defaultOutputName = "probabilities"
)

// ONNXModel wraps an exported fraud model behind the Classifier
// interface. The session is created at most once, on first use, behind a
// sync.Once with a latched error; after that the model is read-only and
// shareable across goroutines (the ONNX session itself is serialized with
// a mutex because it reuses bound tensors).
type ONNXModel struct {
	path       string
	version    string
	features   []string
	inputName  string
	outputName string

	once    sync.Once
	initErr error
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// ONNXOption configures an ONNXModel.
type ONNXOption func(*ONNXModel)

// WithTensorNames overrides the graph's input/output tensor names.
func WithTensorNames(input, output string) ONNXOption {
	return func(m *ONNXModel) {
		m.inputName = input
		m.outputName = output
	}
}

// NewONNXModel creates a lazily-initialized classifier for the model
// artifact at path. features is the training-time schema in column order;
// version tags persisted analyses.
func NewONNXModel(path, version string, features []string, opts ...ONNXOption) *ONNXModel {
	m := &ONNXModel{
		path:       path,
		version:    version,
		features:   features,
		inputName:  defaultInputName,
		outputName: defaultOutputName,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FeatureNames returns the model's feature schema in column order.
func (m *ONNXModel) FeatureNames() []string {
	out := make([]string, len(m.features))
	copy(out, m.features)
	return out
}

// Version returns the model artifact tag.
func (m *ONNXModel) Version() string { return m.version }

// ensureLoaded initializes the ONNX runtime and session exactly once.
// A failed load is latched: every subsequent call returns the same error
// without retrying a broken artifact.
func (m *ONNXModel) ensureLoaded() error {
	m.once.Do(func() {
		if _, err := os.Stat(m.path); err != nil {
			m.initErr = fmt.Errorf("%w: model artifact missing at %s: %v", ErrUnavailable, m.path, err)
			return
		}

		if lib := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				m.initErr = fmt.Errorf("%w: initialize onnxruntime: %v", ErrUnavailable, err)
				return
			}
		}

		session, err := ort.NewDynamicAdvancedSession(
			m.path,
			[]string{m.inputName},
			[]string{m.outputName},
			nil,
		)
		if err != nil {
			m.initErr = fmt.Errorf("%w: create onnx session: %v", ErrUnavailable, err)
			return
		}
		m.session = session
	})
	return m.initErr
}

// Predict runs the model over the matrix and returns the fraud-class
// probability per row.
func (m *ONNXModel) Predict(ctx context.Context, matrix [][]float64) ([]float64, error) {
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	if len(matrix) == 0 {
		return nil, nil
	}
	width := len(m.features)
	for i, row := range matrix {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, model expects %d", ErrBadInput, i, len(row), width)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	flat := make([]float32, 0, len(matrix)*width)
	for _, row := range matrix {
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}

	input, err := ort.NewTensor(ort.NewShape(int64(len(matrix)), int64(width)), flat)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate input tensor: %v", ErrUnavailable, err)
	}
	defer func() { _ = input.Destroy() }()

	m.mu.Lock()
	outputs := []ort.Value{nil}
	runErr := m.session.Run([]ort.Value{input}, outputs)
	m.mu.Unlock()
	if runErr != nil {
		return nil, fmt.Errorf("%w: onnx run: %v", ErrUnavailable, runErr)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	probs, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output tensor type", ErrUnavailable)
	}
	return extractPositiveClass(probs.GetData(), len(matrix))
}

// extractPositiveClass reads per-row fraud probabilities from the raw
// output buffer. Binary classifiers export either [n] (positive class
// only) or [n][2] (both classes); in the latter case column 1 is fraud.
func extractPositiveClass(data []float32, rows int) ([]float64, error) {
	out := make([]float64, rows)
	switch {
	case len(data) == rows:
		for i, v := range data {
			out[i] = clamp01(float64(v))
		}
	case len(data) == rows*2:
		for i := 0; i < rows; i++ {
			out[i] = clamp01(float64(data[i*2+1]))
		}
	default:
		return nil, fmt.Errorf("%w: output has %d values for %d rows", ErrUnavailable, len(data), rows)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
