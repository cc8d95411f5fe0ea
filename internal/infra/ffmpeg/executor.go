package ffmpeg

import (
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

type ExecutorConfig struct {
	FFmpegPath  string
	FFprobePath string
	// Frames are decoded straight to Width x Height.
	Width  int
	Height int
	// RGB asks for rgb24 instead of the default bgr24 channel order.
	RGB bool
}

// Executor runs ffmpeg and ffprobe for probing, decoding and overlay
// rendering. It holds no per-clip state.
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	width       int
	height      int
	pixFmt      string
	logger      *zap.Logger
}

func NewExecutor(cfg ExecutorConfig, logger *zap.Logger) (*Executor, error) {
	ffmpegPath, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := exec.LookPath(cfg.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	pixFmt := "bgr24"
	if cfg.RGB {
		pixFmt = "rgb24"
	}

	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		width:       cfg.Width,
		height:      cfg.Height,
		pixFmt:      pixFmt,
		logger:      logger.With(zap.String("component", "ffmpeg")),
	}, nil
}
