package inference

import "github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"

// DecisionRule is the alert rule: p(anomaly) must reach Threshold and beat
// p(normal) by at least MinGap.
type DecisionRule struct {
	Threshold float64
	MinGap    float64
}

func (r DecisionRule) Decide(s entity.AggregatedScore) entity.Decision {
	gap := s.PAnomaly - s.PNormal
	return entity.Decision{
		PAnomaly:  s.PAnomaly,
		PNormal:   s.PNormal,
		Gap:       gap,
		IsAnomaly: s.PAnomaly >= r.Threshold && gap >= r.MinGap,
	}
}

// StreakPolicy decides whether a missing streak vetoes an alert. With
// Override off the streak is informational only.
type StreakPolicy struct {
	Required int
	Override bool
}

// Enabled reports whether a streak check is meaningful at all.
func (p StreakPolicy) Enabled() bool { return p.Required > 1 }

// Apply returns d with the veto applied when configured. applied reports
// whether the verdict changed.
func (p StreakPolicy) Apply(d entity.Decision, found bool) (entity.Decision, bool) {
	if !p.Enabled() || !p.Override || found || !d.IsAnomaly {
		return d, false
	}
	d.IsAnomaly = false
	return d, true
}
