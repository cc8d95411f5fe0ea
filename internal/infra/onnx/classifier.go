package onnx

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const defaultNumClasses = 2

type ClassifierConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	// Every sequence fed to Infer must be SequenceLength x FeatureDim.
	SequenceLength int
	FeatureDim     int
	// NumClasses sizes the output tensor when the model leaves it dynamic.
	NumClasses int
}

// Classifier runs the temporal model through onnxruntime. A session is not
// shared between goroutines, so Infer serializes calls.
type Classifier struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputShape ort.Shape
	numClasses int
	seqLen     int
	featureDim int
	logger     *zap.Logger
}

// NewClassifier loads the model and runs one warm-up inference on zeros so a
// broken model fails at startup rather than on the first task.
func NewClassifier(cfg ClassifierConfig, logger *zap.Logger) (*Classifier, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	numClasses, err := outputWidth(cfg)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	c := &Classifier{
		session:    session,
		inputShape: ort.NewShape(1, int64(cfg.SequenceLength), int64(cfg.FeatureDim)),
		numClasses: numClasses,
		seqLen:     cfg.SequenceLength,
		featureDim: cfg.FeatureDim,
		logger:     logger.With(zap.String("component", "classifier")),
	}

	warm := make([][]float32, cfg.SequenceLength)
	for i := range warm {
		warm[i] = make([]float32, cfg.FeatureDim)
	}
	if _, err := c.Infer(context.Background(), warm); err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("warm-up inference: %w", err)
	}

	c.logger.Info("model loaded",
		zap.String("model", cfg.ModelPath),
		zap.String("input", cfg.InputName),
		zap.String("output", cfg.OutputName),
		zap.Int("seq_len", cfg.SequenceLength),
		zap.Int("feature_dim", cfg.FeatureDim),
		zap.Int("classes", numClasses),
	)
	return c, nil
}

// outputWidth reads the class count from the model's declared output shape,
// falling back to the configured count when that dimension is dynamic.
func outputWidth(cfg ClassifierConfig) (int, error) {
	fallback := cfg.NumClasses
	if fallback <= 0 {
		fallback = defaultNumClasses
	}
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return 0, fmt.Errorf("inspect model: %w", err)
	}

	foundInput := false
	for _, in := range inputs {
		if in.Name == cfg.InputName {
			foundInput = true
		}
	}
	if !foundInput {
		return 0, fmt.Errorf("model has no input named %q", cfg.InputName)
	}

	for _, out := range outputs {
		if out.Name != cfg.OutputName {
			continue
		}
		dims := out.Dimensions
		if len(dims) > 0 && dims[len(dims)-1] > 0 {
			return int(dims[len(dims)-1]), nil
		}
		return fallback, nil
	}
	return 0, fmt.Errorf("model has no output named %q", cfg.OutputName)
}

// Infer classifies one sequence and returns the probability row.
func (c *Classifier) Infer(ctx context.Context, sequence [][]float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := flatten(sequence, c.seqLen, c.featureDim)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	input, err := ort.NewTensor(c.inputShape, data)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.numClasses)))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	probs := make([]float32, c.numClasses)
	copy(probs, output.GetData())
	return probs, nil
}

func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return err
		}
		c.session = nil
	}
	return ort.DestroyEnvironment()
}

func flatten(sequence [][]float32, seqLen, dim int) ([]float32, error) {
	if len(sequence) != seqLen {
		return nil, fmt.Errorf("sequence has %d frames, model expects %d", len(sequence), seqLen)
	}
	out := make([]float32, 0, seqLen*dim)
	for i, v := range sequence {
		if len(v) != dim {
			return nil, fmt.Errorf("frame %d has %d features, model expects %d", i, len(v), dim)
		}
		out = append(out, v...)
	}
	return out, nil
}
