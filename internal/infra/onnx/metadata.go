package onnx

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const anomalyLabel = "anomaly"

// Metadata is the YAML sidecar exported next to the model. Every field is
// optional; zero values mean "not stated".
type Metadata struct {
	Labels         []string `yaml:"labels"`
	SequenceLength int      `yaml:"sequence_length"`
	FeatureDim     int      `yaml:"feature_dim"`
	InputName      string   `yaml:"input_name"`
	OutputName     string   `yaml:"output_name"`
}

// LoadMetadata returns nil without error when path is empty or the file
// does not exist.
func LoadMetadata(path string) (*Metadata, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	var md Metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse model metadata %s: %w", path, err)
	}
	return &md, nil
}

// AnomalyIndex returns the position of the "anomaly" label, or -1.
func (m *Metadata) AnomalyIndex() int {
	if m == nil {
		return -1
	}
	for i, l := range m.Labels {
		if strings.EqualFold(strings.TrimSpace(l), anomalyLabel) {
			return i
		}
	}
	return -1
}

// ResolveAnomalyIndex reconciles the configured class index with the model
// metadata. Metadata wins when it names an anomaly label; an explicitly
// configured index that disagrees with it is an error. fromMetadata reports
// whether the returned index was confirmed by metadata.
func ResolveAnomalyIndex(md *Metadata, configured int, explicit bool) (idx int, fromMetadata bool, err error) {
	metaIdx := md.AnomalyIndex()
	if metaIdx < 0 {
		return configured, false, nil
	}
	if explicit && configured != metaIdx {
		return 0, false, fmt.Errorf("ANOMALY_CLASS_INDEX=%d but model metadata labels %v put %q at %d",
			configured, md.Labels, anomalyLabel, metaIdx)
	}
	return metaIdx, true, nil
}

// CheckShape verifies the runtime sequence shape against what the model was
// exported with.
func (m *Metadata) CheckShape(seqLen, featureDim int) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.SequenceLength > 0 && m.SequenceLength != seqLen {
		errs = append(errs, fmt.Errorf("model expects sequence length %d, configured %d", m.SequenceLength, seqLen))
	}
	if m.FeatureDim > 0 && m.FeatureDim != featureDim {
		errs = append(errs, fmt.Errorf("model expects feature dim %d, pipeline produces %d", m.FeatureDim, featureDim))
	}
	return errors.Join(errs...)
}
