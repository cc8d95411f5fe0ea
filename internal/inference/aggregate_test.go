package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

func samples(pairs ...[2]float64) []entity.ScoreSample {
	out := make([]entity.ScoreSample, len(pairs))
	for i, p := range pairs {
		out[i] = entity.ScoreSample{PAnomaly: p[0], PNormal: p[1], WindowIndex: i}
	}
	return out
}

func TestAggregateMean(t *testing.T) {
	got, err := Aggregate(AggregateMean, samples([2]float64{0.2, 0.7}, [2]float64{0.6, 0.3}))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.PAnomaly, 1e-9)
	assert.InDelta(t, 0.5, got.PNormal, 1e-9)
}

func TestAggregateMaxKeepsPairedNormal(t *testing.T) {
	got, err := Aggregate(AggregateMax, samples(
		[2]float64{0.10, 0.90},
		[2]float64{0.92, 0.05},
		[2]float64{0.30, 0.70},
	))
	require.NoError(t, err)
	assert.Equal(t, 0.92, got.PAnomaly)
	assert.Equal(t, 0.05, got.PNormal)
}

func TestAggregateP90(t *testing.T) {
	values := make([][2]float64, 0, 11)
	for i := 0; i <= 10; i++ {
		values = append(values, [2]float64{float64(i) / 10, 0})
	}
	got, err := Aggregate(AggregateP90, samples(values...))
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.PAnomaly, 1e-9)
	assert.InDelta(t, 0.1, got.PNormal, 1e-9)
}

func TestPercentileInterpolates(t *testing.T) {
	assert.InDelta(t, 0.796, Percentile([]float64{0.1, 0.92, 0.3}, 90), 1e-9)
	assert.Equal(t, 0.5, Percentile([]float64{0.5}, 90))
}

func TestAggregateDeterministic(t *testing.T) {
	in := samples([2]float64{0.3, 0.6}, [2]float64{0.8, 0.1}, [2]float64{0.5, 0.5})
	for _, mode := range []Aggregator{AggregateMean, AggregateMax, AggregateP90} {
		a, err := Aggregate(mode, in)
		require.NoError(t, err)
		b, err := Aggregate(mode, in)
		require.NoError(t, err)
		assert.Equal(t, a, b, mode)
	}
}

func TestAggregateEmpty(t *testing.T) {
	_, err := Aggregate(AggregateMean, nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestParseAggregator(t *testing.T) {
	a, err := ParseAggregator(" MAX ")
	require.NoError(t, err)
	assert.Equal(t, AggregateMax, a)

	_, err = ParseAggregator("median")
	assert.Error(t, err)
}

func TestScoreFromProbs(t *testing.T) {
	s, err := ScoreFromProbs([]float32{0.2, 0.8}, 1, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, s.PAnomaly, 1e-6)
	assert.InDelta(t, 0.2, s.PNormal, 1e-6)
	assert.Equal(t, 4, s.WindowIndex)

	s, err = ScoreFromProbs([]float32{0.2, 0.8}, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, s.PAnomaly, 1e-6)

	s, err = ScoreFromProbs([]float32{0.75}, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, s.PNormal, 1e-6)

	_, err = ScoreFromProbs([]float32{0.1, 0.2, 0.7}, 1, 0)
	assert.Error(t, err)
}

func TestHasStreak(t *testing.T) {
	in := samples([2]float64{0.7, 0}, [2]float64{0.2, 0}, [2]float64{0.8, 0}, [2]float64{0.9, 0})
	assert.True(t, HasStreak(in, 0.65, 2))
	assert.False(t, HasStreak(in, 0.65, 3))
	assert.True(t, HasStreak(in, 0.65, 1))
	assert.True(t, HasStreak(nil, 0.65, 0))
}
