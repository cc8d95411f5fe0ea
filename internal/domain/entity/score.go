package entity

// ScoreSample is one classified window.
type ScoreSample struct {
	PAnomaly    float64
	PNormal     float64
	WindowIndex int
}

// AggregatedScore is the reduction of one or many samples.
type AggregatedScore struct {
	PAnomaly float64
	PNormal  float64
}

type Decision struct {
	PAnomaly  float64
	PNormal   float64
	Gap       float64
	IsAnomaly bool
}

// Verdict is the label written into logs and debug records.
func (d Decision) Verdict() string {
	if d.IsAnomaly {
		return "anomaly"
	}
	return "normal"
}
