package inference

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

// minStd is the smallest standard deviation used as a divisor; anything
// below it is replaced by 1.
const minStd = 1e-6

// Scaler standardizes feature vectors with a precomputed per-dimension mean
// and standard deviation. It is read-only after construction.
type Scaler struct {
	mean []float32
	std  []float32
}

type scalerFile struct {
	Mean []float32 `json:"mean"`
	Std  []float32 `json:"std"`
}

func NewScaler(mean, std []float32) (*Scaler, error) {
	if len(mean) == 0 || len(mean) != len(std) {
		return nil, fmt.Errorf("scaler mean/std length mismatch: %d vs %d", len(mean), len(std))
	}
	s := &Scaler{
		mean: append([]float32(nil), mean...),
		std:  make([]float32, len(std)),
	}
	for i, v := range std {
		if v < minStd {
			v = 1
		}
		s.std[i] = v
	}
	return s, nil
}

// LoadScaler reads a JSON file of the form {"mean": [...], "std": [...]}.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scaler %s: %w", path, err)
	}
	return NewScaler(f.Mean, f.Std)
}

func (s *Scaler) Dim() int {
	if s == nil {
		return 0
	}
	return len(s.mean)
}

// Apply returns a standardized copy of vec. A nil scaler or a vector of the
// wrong length passes through unchanged.
func (s *Scaler) Apply(vec []float32) []float32 {
	if s == nil || len(vec) != len(s.mean) {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = (v - s.mean[i]) / s.std[i]
	}
	return out
}

// FeaturePipeline turns a decoded frame into the vector fed to the
// classifier: extract, then scale.
type FeaturePipeline struct {
	extractor *Extractor
	scaler    *Scaler
}

// NewFeaturePipeline sizes the extractor from the scaler when one is given,
// else from defaultDim.
func NewFeaturePipeline(scaler *Scaler, defaultDim int) *FeaturePipeline {
	dim := defaultDim
	if scaler.Dim() > 0 {
		dim = scaler.Dim()
	}
	return &FeaturePipeline{extractor: NewExtractor(dim), scaler: scaler}
}

func (p *FeaturePipeline) Dim() int { return p.extractor.Dim() }

func (p *FeaturePipeline) Vectorize(f entity.Frame) ([]float32, bool) {
	vec, adjusted := p.extractor.Extract(f)
	return p.scaler.Apply(vec), adjusted
}
