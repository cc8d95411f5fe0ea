package entity

import "time"

// InferenceSettings is the inference configuration snapshot stored with
// every record.
type InferenceSettings struct {
	Mode               string  `json:"mode"`
	Threshold          float64 `json:"threshold"`
	MinGap             float64 `json:"min_gap"`
	AnomalyClassIndex  int     `json:"anomaly_class_index"`
	Stride             int     `json:"stride"`
	Aggregator         string  `json:"aggregator"`
	ConsecutiveWindows int     `json:"consecutive_windows"`
}

type RecordResult struct {
	PAnom    float64 `json:"p_anom"`
	PNorm    float64 `json:"p_norm"`
	Gap      float64 `json:"gap"`
	Decision string  `json:"decision"`
}

type AggregatedDetail struct {
	Mode  string  `json:"mode"`
	PAnom float64 `json:"p_anom"`
	PNorm float64 `json:"p_norm"`
}

type StreakDetail struct {
	Required int  `json:"required"`
	Found    bool `json:"found"`
	Applied  bool `json:"applied"`
}

// Provenance describes where the scores came from. Uniform runs fill
// SampledIndices and PredVector; sliding runs fill Windows and Indices.
type Provenance struct {
	SampledIndices   []int             `json:"sampled_indices,omitempty"`
	PredVector       []float32         `json:"pred_vector,omitempty"`
	Windows          [][2]float64      `json:"windows,omitempty"`
	Indices          []int             `json:"indices,omitempty"`
	Aggregated       *AggregatedDetail `json:"aggregated,omitempty"`
	Streak           *StreakDetail     `json:"streak,omitempty"`
	FeaturesAdjusted bool              `json:"features_adjusted,omitempty"`
	Note             string            `json:"note,omitempty"`
}

// DebugRecord is written once per analyzed clip and never mutated.
type DebugRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	File      string            `json:"file"`
	VideoPath string            `json:"video_path"`
	Meta      VideoMeta         `json:"meta"`
	Infer     InferenceSettings `json:"infer"`
	Result    RecordResult      `json:"result"`
	Details   Provenance        `json:"details"`
	VideoURL  string            `json:"video_url"`
	CameraID  int               `json:"camera_id"`
}

// NewDebugRecord snapshots one analysis. file is the name the clip is keyed
// by; callers fall back to the resolved path when the task names none.
func NewDebugRecord(task Task, file, videoPath string, meta VideoMeta, settings InferenceSettings, d Decision, details Provenance) DebugRecord {
	return DebugRecord{
		Timestamp: time.Now().UTC(),
		File:      file,
		VideoPath: videoPath,
		Meta:      meta,
		Infer:     settings,
		Result: RecordResult{
			PAnom:    d.PAnomaly,
			PNorm:    d.PNormal,
			Gap:      d.Gap,
			Decision: d.Verdict(),
		},
		Details:  details,
		VideoURL: task.VideoURL,
		CameraID: task.Camera(),
	}
}
