package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
)

const bannerHeight = 40

// RenderOverlay writes a copy of srcPath with a verdict banner burned into
// every frame.
func (e *Executor) RenderOverlay(ctx context.Context, srcPath, dstPath, label string, alert bool) error {
	color := "green"
	if alert {
		color = "red"
	}
	filters := NewFilterBuilder().
		Banner(bannerHeight).
		Text(label, 10, 10, 22, color)

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y", "-v", "error", "-nostdin",
		"-i", srcPath,
		"-vf", filters.Build(),
		"-an",
		"-c:v", "mpeg4", "-q:v", "4",
		dstPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg overlay: %w, output: %s", err, string(output))
	}
	return nil
}
