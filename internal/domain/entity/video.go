package entity

// VideoMeta is what the prober reports about a clip.
type VideoMeta struct {
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
	DurationSec float64 `json:"duration_sec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

// Frame is one decoded, resized frame with three interleaved 8-bit channels
// in decode order (BGR unless the decoder was asked for RGB).
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

