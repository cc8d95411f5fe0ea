package inference

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

type Aggregator string

const (
	AggregateMean Aggregator = "mean"
	AggregateMax  Aggregator = "max"
	AggregateP90  Aggregator = "p90"
)

var ErrNoSamples = errors.New("no score samples")

func ParseAggregator(s string) (Aggregator, error) {
	switch a := Aggregator(strings.ToLower(strings.TrimSpace(s))); a {
	case AggregateMean, AggregateMax, AggregateP90:
		return a, nil
	default:
		return "", fmt.Errorf("unknown aggregator %q", s)
	}
}

// ScoreFromProbs reads the anomaly and normal probabilities out of a
// classifier output. A single-column output is treated as p(anomaly).
func ScoreFromProbs(probs []float32, anomalyIndex, windowIndex int) (entity.ScoreSample, error) {
	switch {
	case len(probs) == 1:
		pa := float64(probs[0])
		return entity.ScoreSample{PAnomaly: pa, PNormal: 1 - pa, WindowIndex: windowIndex}, nil
	case len(probs) == 2 && (anomalyIndex == 0 || anomalyIndex == 1):
		return entity.ScoreSample{
			PAnomaly:    float64(probs[anomalyIndex]),
			PNormal:     float64(probs[1-anomalyIndex]),
			WindowIndex: windowIndex,
		}, nil
	default:
		return entity.ScoreSample{}, fmt.Errorf("classifier returned %d classes, anomaly index %d", len(probs), anomalyIndex)
	}
}

// Aggregate reduces per-window samples to one score pair.
func Aggregate(mode Aggregator, samples []entity.ScoreSample) (entity.AggregatedScore, error) {
	if len(samples) == 0 {
		return entity.AggregatedScore{}, ErrNoSamples
	}

	switch mode {
	case AggregateMax:
		best := samples[0]
		for _, s := range samples[1:] {
			if s.PAnomaly > best.PAnomaly {
				best = s
			}
		}
		return entity.AggregatedScore{PAnomaly: best.PAnomaly, PNormal: best.PNormal}, nil

	case AggregateP90:
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.PAnomaly
		}
		pa := Percentile(values, 90)
		return entity.AggregatedScore{PAnomaly: pa, PNormal: 1 - pa}, nil

	case AggregateMean:
		var sa, sn float64
		for _, s := range samples {
			sa += s.PAnomaly
			sn += s.PNormal
		}
		n := float64(len(samples))
		return entity.AggregatedScore{PAnomaly: sa / n, PNormal: sn / n}, nil

	default:
		return entity.AggregatedScore{}, fmt.Errorf("unknown aggregator %q", mode)
	}
}

// Percentile uses linear interpolation between closest ranks. values is not
// modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// HasStreak reports whether at least run consecutive samples, in the order
// given, have p(anomaly) >= threshold.
func HasStreak(samples []entity.ScoreSample, threshold float64, run int) bool {
	if run < 1 {
		return true
	}
	streak := 0
	for _, s := range samples {
		if s.PAnomaly >= threshold {
			streak++
			if streak >= run {
				return true
			}
		} else {
			streak = 0
		}
	}
	return false
}
