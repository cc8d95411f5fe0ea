package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

// Probe reads clip metadata. The frame count comes from the container when
// it records one, else it is estimated from duration and frame rate.
func (e *Executor) Probe(ctx context.Context, videoPath string) (*entity.VideoMeta, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames:format=duration",
		"-of", "json",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(output)
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

func parseProbe(output []byte) (*entity.VideoMeta, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no video stream")
	}
	s := probe.Streams[0]

	meta := &entity.VideoMeta{Width: s.Width, Height: s.Height}
	meta.FPS = parseFrameRate(s.AvgFrameRate)
	if meta.FPS == 0 {
		meta.FPS = parseFrameRate(s.RFrameRate)
	}
	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)

	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		meta.TotalFrames = n
	} else if duration > 0 && meta.FPS > 0 {
		meta.TotalFrames = int(math.Round(duration * meta.FPS))
	}

	if meta.FPS > 0 {
		meta.DurationSec = float64(meta.TotalFrames) / meta.FPS
	} else {
		meta.DurationSec = duration
	}
	return meta, nil
}

// parseFrameRate handles ffprobe rationals such as "30000/1001".
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
