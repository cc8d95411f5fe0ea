package inference

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalerClampsTinyStd(t *testing.T) {
	s, err := NewScaler([]float32{1, 2, 3}, []float32{2, 0, 1e-9})
	require.NoError(t, err)

	out := s.Apply([]float32{3, 5, 3})
	assert.Equal(t, []float32{1, 3, 0}, out)
	for _, v := range out {
		assert.False(t, math.IsInf(float64(v), 0) || math.IsNaN(float64(v)))
	}
}

func TestScalerPassThrough(t *testing.T) {
	s, err := NewScaler([]float32{1, 2}, []float32{1, 1})
	require.NoError(t, err)

	vec := []float32{1, 2, 3}
	assert.Equal(t, vec, s.Apply(vec))

	var none *Scaler
	assert.Equal(t, vec, none.Apply(vec))
	assert.Equal(t, 0, none.Dim())
}

func TestNewScalerMismatch(t *testing.T) {
	_, err := NewScaler([]float32{1, 2}, []float32{1})
	assert.Error(t, err)
}

func TestLoadScaler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_scaler.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mean":[0.5,0.5],"std":[0.25,0]}`), 0o644))

	s, err := LoadScaler(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Dim())
	assert.Equal(t, []float32{2, 0.5}, s.Apply([]float32{1, 1}))

	_, err = LoadScaler(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFeaturePipelineTakesScalerDimension(t *testing.T) {
	mean := make([]float32, 64)
	std := make([]float32, 64)
	for i := range std {
		std[i] = 1
	}
	s, err := NewScaler(mean, std)
	require.NoError(t, err)

	p := NewFeaturePipeline(s, RawFeatureDim)
	assert.Equal(t, 64, p.Dim())

	vec, adjusted := p.Vectorize(solidFrame(8, 8, 0, 0, 0))
	assert.Len(t, vec, 64)
	assert.True(t, adjusted)

	assert.Equal(t, RawFeatureDim, NewFeaturePipeline(nil, RawFeatureDim).Dim())
}
