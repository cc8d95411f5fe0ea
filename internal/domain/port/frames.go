package port

import (
	"context"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

// FrameRequest selects which frames a reader decodes. Every=N keeps frames
// 0, N, 2N, ...; Limit caps how many are delivered (0 means no cap).
type FrameRequest struct {
	Every int
	Limit int
}

// FrameFunc receives frames in decode order with their index in the clip.
// frame.Pix is only valid for the duration of the call.
type FrameFunc func(index int, frame entity.Frame) error

type FrameReader interface {
	Probe(ctx context.Context, videoPath string) (*entity.VideoMeta, error)
	ReadFrames(ctx context.Context, videoPath string, req FrameRequest, fn FrameFunc) error
}

// OverlayRenderer burns a verdict banner into a copy of the clip.
type OverlayRenderer interface {
	RenderOverlay(ctx context.Context, srcPath, dstPath, label string, alert bool) error
}
