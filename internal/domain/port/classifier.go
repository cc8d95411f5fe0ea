package port

import "context"

// Classifier maps one sequence of T feature vectors to a class probability
// vector. Which slot means "anomaly" is decided by the caller.
type Classifier interface {
	Infer(ctx context.Context, sequence [][]float32) ([]float32, error)
	Close() error
}
