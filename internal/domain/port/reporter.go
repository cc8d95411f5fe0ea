package port

import "context"

const (
	AnomalyTypeModel    = "model_detected"
	AnomalyTypeNormal   = "normal_observed"
	AnomalyTypeFilename = "forced_by_filename"
)

type Report struct {
	CameraID    int
	AnomalyType string
	Confidence  float64
	ClipURL     string
}

// ReportSink delivers a verdict to the backend. It reports failure through
// its return value only.
type ReportSink interface {
	Send(ctx context.Context, r Report) bool
}
