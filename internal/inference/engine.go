package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	onnxruntime "github.com/yalue/onnxruntime_go"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
)

var (
	// ErrModelNotLoaded indicates inference was requested before a model
	// artifact was loaded for the chain.
	ErrModelNotLoaded = errors.New("model not loaded")
)

var runtimeInit sync.Once

// InitializeRuntime prepares the shared ONNX runtime environment for the
// whole process. libraryPath may be empty when the runtime shared library is
// already on the loader path.
func InitializeRuntime(libraryPath string) error {
	var err error
	runtimeInit.Do(func() {
		if libraryPath != "" {
			onnxruntime.SetSharedLibraryPath(libraryPath)
		}
		if !onnxruntime.IsInitialized() {
			err = onnxruntime.InitializeEnvironment()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// Engine runs one chain's classifier. The model exposes a predicted label
// and a probability distribution; the engine always reads the distribution
// and leaves the verdict to the caller, so the decision threshold stays
// outside the artifact.
//
// Load replaces the session and its metadata together under the write lock,
// so a concurrent Predict sees either the old model or the new one, never a
// half-loaded pair.
type Engine struct {
	chain  models.ChainType
	logger *slog.Logger

	mu       sync.RWMutex
	session  *onnxruntime.DynamicAdvancedSession
	metadata *models.ModelMetadata
	scaler   *Scaler
}

func NewEngine(chain models.ChainType, logger logging.Logger) *Engine {
	return &Engine{
		chain:  chain,
		logger: logger.WithComponent("inference_engine").With("chain", string(chain)),
	}
}

// Load builds a session from an in-memory ONNX artifact and swaps it in.
// The previous session, if any, is destroyed after the swap.
func (e *Engine) Load(modelBytes []byte, meta *models.ModelMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	// Input: "input" (scaled feature vector)
	// Outputs: "output" (predicted class), "probabilities" (class probabilities)
	session, err := onnxruntime.NewDynamicAdvancedSessionWithONNXData(modelBytes,
		[]string{"input"}, []string{"output", "probabilities"}, options)
	if err != nil {
		return fmt.Errorf("failed to load ONNX model: %w", err)
	}

	e.mu.Lock()
	previous := e.session
	e.session = session
	e.metadata = meta
	e.scaler = NewScaler(meta)
	e.mu.Unlock()

	if previous != nil {
		previous.Destroy()
	}

	e.logger.Info("model loaded",
		"features", len(meta.FeatureNames),
		"threshold", meta.DeploymentThreshold,
		"artifact_bytes", len(modelBytes))
	return nil
}

// Loaded reports whether the engine holds a usable session.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session != nil
}

// Metadata returns the metadata of the currently loaded model, or nil.
func (e *Engine) Metadata() *models.ModelMetadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metadata
}

// Predict scales the raw feature vector and runs inference, returning the
// probability of the positive (fraud) class clamped to [0, 1].
func (e *Engine) Predict(vector []float64) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil {
		return 0, ErrModelNotLoaded
	}

	scaled, err := e.scaler.Apply(vector)
	if err != nil {
		return 0, err
	}
	input := make([]float32, len(scaled))
	for i, v := range scaled {
		input[i] = float32(v)
	}

	inputShape := onnxruntime.NewShape(1, int64(len(input)))
	inputTensor, err := onnxruntime.NewTensor(inputShape, input)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// Output 1: predicted class (int64, shape [1]), read but unused.
	classOutput := make([]int64, 1)
	classTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1), classOutput)
	if err != nil {
		return 0, fmt.Errorf("failed to create class output tensor: %w", err)
	}
	defer classTensor.Destroy()

	// Output 2: class probabilities (float32, shape [1, 2]).
	probOutput := make([]float32, 2)
	probTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, 2), probOutput)
	if err != nil {
		return 0, fmt.Errorf("failed to create probabilities output tensor: %w", err)
	}
	defer probTensor.Destroy()

	inputs := []onnxruntime.Value{inputTensor}
	outputs := []onnxruntime.Value{classTensor, probTensor}
	if err := e.session.Run(inputs, outputs); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	probability := float64(probOutput[1])
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return probability, nil
}

// Close releases the loaded session. The engine can be reloaded afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
		e.metadata = nil
		e.scaler = nil
	}
}
