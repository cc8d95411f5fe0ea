package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrMalformedTask marks a payload that can never be processed as sent.
var ErrMalformedTask = errors.New("malformed task")

// Task is the inbound message from the video analysis queue.
type Task struct {
	VideoPath        string `json:"video_path,omitempty"`
	VideoURL         string `json:"video_url,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	CameraID         *int   `json:"camera_id"`
}

// DecodeTask parses and validates a raw queue payload.
func DecodeTask(raw []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return Task{}, fmt.Errorf("%w: unmarshal: %v", ErrMalformedTask, err)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (t Task) Validate() error {
	if t.CameraID == nil {
		return fmt.Errorf("%w: camera_id is required", ErrMalformedTask)
	}
	if strings.TrimSpace(t.VideoPath) == "" && strings.TrimSpace(t.VideoURL) == "" {
		return fmt.Errorf("%w: one of video_path or video_url is required", ErrMalformedTask)
	}
	return nil
}

// Camera returns the camera id, zero when absent.
func (t Task) Camera() int {
	if t.CameraID == nil {
		return 0
	}
	return *t.CameraID
}

// Basename is the name the clip is known by: the original upload name when
// given, else the base of the local path.
func (t Task) Basename() string {
	if t.OriginalFilename != "" {
		return filepath.Base(t.OriginalFilename)
	}
	if t.VideoPath != "" {
		return filepath.Base(t.VideoPath)
	}
	return ""
}
