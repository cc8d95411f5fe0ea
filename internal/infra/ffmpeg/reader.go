package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
)

// ReadFrames decodes the clip to raw frames of the executor's size and hands
// them to fn in order. A clip that stops decoding early is not an error as
// long as at least one frame came out; callers count what they got.
func (e *Executor) ReadFrames(ctx context.Context, videoPath string, req port.FrameRequest, fn port.FrameFunc) error {
	every := req.Every
	if every < 1 {
		every = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := e.decodeArgs(videoPath, every, req.Limit)
	e.logger.Debug("decoding frames", zap.Strings("args", args))

	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	frameSize := e.width * e.height * 3
	buf := make([]byte, frameSize)
	read := 0
	var cbErr error

	for req.Limit <= 0 || read < req.Limit {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				cbErr = fmt.Errorf("read frame %d: %w", read, err)
			}
			break
		}
		frame := entity.Frame{Width: e.width, Height: e.height, Pix: buf}
		if err := fn(read*every, frame); err != nil {
			cbErr = err
			break
		}
		read++
	}

	stoppedEarly := cbErr != nil || (req.Limit > 0 && read >= req.Limit)

	// Stop ffmpeg if we quit before it finished writing.
	cancel()
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	switch {
	case cbErr != nil:
		return cbErr
	case ctx.Err() != nil:
		return ctx.Err()
	case waitErr != nil && !stoppedEarly && read == 0:
		return fmt.Errorf("ffmpeg decode: %w, output: %s", waitErr, stderr.String())
	case waitErr != nil && !stoppedEarly:
		e.logger.Warn("decode ended early",
			zap.String("video_path", videoPath),
			zap.Int("frames", read),
			zap.String("stderr", stderr.String()),
		)
	}
	return nil
}

func (e *Executor) decodeArgs(videoPath string, every, limit int) []string {
	filters := NewFilterBuilder().SelectEvery(every).Scale(e.width, e.height)

	args := []string{"-v", "error", "-nostdin", "-i", videoPath}
	if !filters.Empty() {
		args = append(args, "-vf", filters.Build())
	}
	args = append(args, "-fps_mode", "passthrough")
	if limit > 0 {
		args = append(args, "-frames:v", strconv.Itoa(limit))
	}
	return append(args, "-f", "rawvideo", "-pix_fmt", e.pixFmt, "pipe:1")
}
