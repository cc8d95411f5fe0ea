package inference

import (
	"context"
	"fmt"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
)

const (
	ModeUniform = "uniform"
	ModeSliding = "sliding"
)

// Window is one full sequence ready for classification. Index is the clip
// frame index of the newest frame in a sliding window, 0 in uniform mode.
type Window struct {
	Index    int
	Sequence [][]float32
}

// SampleReport is the sampler's provenance for the debug record.
type SampleReport struct {
	SampledIndices   []int
	WindowIndices    []int
	FramesRead       int
	FeaturesAdjusted bool
	Note             string
}

type EmitFunc func(w Window) error

// Sampler produces zero or more windows from a clip. Zero windows is a
// normal outcome and means "no decision".
type Sampler interface {
	Mode() string
	Sample(ctx context.Context, videoPath string, meta entity.VideoMeta, emit EmitFunc) (*SampleReport, error)
}

func NewSampler(mode string, reader port.FrameReader, features *FeaturePipeline, seqLen, stride int) (Sampler, error) {
	switch mode {
	case ModeUniform:
		return &UniformSampler{reader: reader, features: features, seqLen: seqLen}, nil
	case ModeSliding:
		if stride < 1 {
			stride = 1
		}
		return &SlidingSampler{reader: reader, features: features, seqLen: seqLen, stride: stride}, nil
	default:
		return nil, fmt.Errorf("unknown infer mode %q", mode)
	}
}

// UniformStride is max(total/seqLen, 1).
func UniformStride(total, seqLen int) int {
	if seqLen <= 0 {
		return 1
	}
	if s := total / seqLen; s > 1 {
		return s
	}
	return 1
}

// UniformIndices lists the seqLen frame indices uniform sampling targets.
func UniformIndices(total, seqLen int) []int {
	stride := UniformStride(total, seqLen)
	idx := make([]int, seqLen)
	for i := range idx {
		idx[i] = i * stride
	}
	return idx
}

// UniformSampler picks seqLen frames spread evenly over the clip, the way
// the model was trained.
type UniformSampler struct {
	reader   port.FrameReader
	features *FeaturePipeline
	seqLen   int
}

func (s *UniformSampler) Mode() string { return ModeUniform }

func (s *UniformSampler) Sample(ctx context.Context, videoPath string, meta entity.VideoMeta, emit EmitFunc) (*SampleReport, error) {
	rep := &SampleReport{}
	if meta.TotalFrames <= 0 {
		rep.Note = "unknown frame count"
		return rep, nil
	}

	stride := UniformStride(meta.TotalFrames, s.seqLen)
	seq := make([][]float32, 0, s.seqLen)
	err := s.reader.ReadFrames(ctx, videoPath, port.FrameRequest{Every: stride, Limit: s.seqLen},
		func(index int, frame entity.Frame) error {
			vec, adjusted := s.features.Vectorize(frame)
			rep.FeaturesAdjusted = rep.FeaturesAdjusted || adjusted
			seq = append(seq, vec)
			rep.SampledIndices = append(rep.SampledIndices, index)
			rep.FramesRead++
			return nil
		})
	if err != nil {
		return rep, fmt.Errorf("read uniform frames: %w", err)
	}

	if len(seq) < s.seqLen {
		rep.Note = "insufficient frames"
		return rep, nil
	}
	rep.WindowIndices = []int{0}
	return rep, emit(Window{Index: 0, Sequence: seq})
}

// SlidingSampler decodes every frame into a ring of seqLen vectors and emits
// a window as soon as the ring is full, then every stride frames.
type SlidingSampler struct {
	reader   port.FrameReader
	features *FeaturePipeline
	seqLen   int
	stride   int
}

func (s *SlidingSampler) Mode() string { return ModeSliding }

func (s *SlidingSampler) Sample(ctx context.Context, videoPath string, _ entity.VideoMeta, emit EmitFunc) (*SampleReport, error) {
	rep := &SampleReport{}
	ring := NewRing(s.seqLen)
	sinceWarm := 0

	err := s.reader.ReadFrames(ctx, videoPath, port.FrameRequest{Every: 1},
		func(index int, frame entity.Frame) error {
			vec, adjusted := s.features.Vectorize(frame)
			rep.FeaturesAdjusted = rep.FeaturesAdjusted || adjusted
			ring.Push(vec)
			rep.FramesRead++
			if !ring.Full() {
				return nil
			}
			due := sinceWarm%s.stride == 0
			sinceWarm++
			if !due {
				return nil
			}
			rep.WindowIndices = append(rep.WindowIndices, index)
			return emit(Window{Index: index, Sequence: ring.Snapshot()})
		})
	if err != nil {
		return rep, fmt.Errorf("read sliding frames: %w", err)
	}
	if len(rep.WindowIndices) == 0 {
		rep.Note = "insufficient frames"
	}
	return rep, nil
}
