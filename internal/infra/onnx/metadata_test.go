package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMetadata(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	path := writeMetadata(t, `
labels: [normal, anomaly]
sequence_length: 50
feature_dim: 106
input_name: features
output_name: probs
`)
	md, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"normal", "anomaly"}, md.Labels)
	assert.Equal(t, 50, md.SequenceLength)
	assert.Equal(t, 106, md.FeatureDim)
	assert.Equal(t, "features", md.InputName)
	assert.Equal(t, 1, md.AnomalyIndex())
}

func TestLoadMetadataMissing(t *testing.T) {
	md, err := LoadMetadata("")
	require.NoError(t, err)
	assert.Nil(t, md)

	md, err = LoadMetadata(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, md)
	assert.Equal(t, -1, md.AnomalyIndex())
}

func TestLoadMetadataInvalid(t *testing.T) {
	_, err := LoadMetadata(writeMetadata(t, "labels: [unclosed"))
	assert.Error(t, err)
}

func TestResolveAnomalyIndex(t *testing.T) {
	flipped := &Metadata{Labels: []string{"Anomaly", "normal"}}

	tests := []struct {
		name       string
		md         *Metadata
		configured int
		explicit   bool
		want       int
		fromMeta   bool
		wantErr    bool
	}{
		{name: "no metadata uses default", md: nil, configured: 1, want: 1},
		{name: "no metadata uses configured", md: nil, configured: 0, explicit: true, want: 0},
		{name: "labels without anomaly", md: &Metadata{Labels: []string{"a", "b"}}, configured: 1, want: 1},
		{name: "metadata overrides default", md: flipped, configured: 1, want: 0, fromMeta: true},
		{name: "metadata agrees", md: flipped, configured: 0, explicit: true, want: 0, fromMeta: true},
		{name: "metadata disagrees", md: flipped, configured: 1, explicit: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, fromMeta, err := ResolveAnomalyIndex(tt.md, tt.configured, tt.explicit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, idx)
			assert.Equal(t, tt.fromMeta, fromMeta)
		})
	}
}

func TestCheckShape(t *testing.T) {
	var none *Metadata
	assert.NoError(t, none.CheckShape(50, 106))

	md := &Metadata{SequenceLength: 50, FeatureDim: 106}
	assert.NoError(t, md.CheckShape(50, 106))
	assert.Error(t, md.CheckShape(32, 106))
	assert.Error(t, md.CheckShape(50, 64))
}

func TestFlatten(t *testing.T) {
	out, err := flatten([][]float32{{1, 2}, {3, 4}, {5, 6}}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out)

	_, err = flatten([][]float32{{1, 2}}, 3, 2)
	assert.Error(t, err)

	_, err = flatten([][]float32{{1, 2}, {3}, {5, 6}}, 3, 2)
	assert.Error(t, err)
}
