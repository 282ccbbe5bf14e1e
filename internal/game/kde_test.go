package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeKDELength(t *testing.T) {
	evalPoints := Linspace(-5, 5, KDEEvalPoints)
	kde := ComputeKDE([]float64{0, 1, 2}, evalPoints)
	assert.Len(t, kde, KDEEvalPoints)
}

func TestComputeKDEEmpty(t *testing.T) {
	evalPoints := Linspace(-5, 5, 50)
	kde := ComputeKDE(nil, evalPoints)

	require.Len(t, kde, 50)
	for _, v := range kde {
		assert.Zero(t, v)
	}
}

func TestBandwidthSingleSampleIsFloor(t *testing.T) {
	// With one sample the deviation is 0 and Scott's rule collapses to the
	// floor, 0.35 * n^-0.35 = 0.35 for n=1.
	assert.Equal(t, 0.35, Bandwidth([]float64{1.5}))
}

func TestBandwidthCeiling(t *testing.T) {
	// Widely spread samples would push Scott's rule past the ceiling.
	h := Bandwidth([]float64{-100, -50, 0, 50, 100})
	assert.Equal(t, 0.5, h)
}

func TestBandwidthScottRegion(t *testing.T) {
	samples := []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0}
	n := float64(len(samples))

	mean := 0.5
	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= n - 1
	want := 1.06 * math.Sqrt(variance) * math.Pow(n, -0.2)

	assert.InDelta(t, want, Bandwidth(samples), 1e-12)
}

func TestKDEIntegratesToOne(t *testing.T) {
	samples := []float64{-1, 0, 1}
	evalPoints := Linspace(-10, 10, 2000)
	kde := ComputeKDE(samples, evalPoints)

	step := 20.0 / 1999
	total := 0.0
	for _, v := range kde {
		total += v * step
	}
	assert.InDelta(t, 1.0, total, 0.01)
}

func TestMatchPercentForEmptySamples(t *testing.T) {
	level := GenerateLevel(12345, 5.0)
	assert.Zero(t, MatchPercentFor(nil, level.HiddenClicks, level.XRange))
}

func TestMatchPercentPerfect(t *testing.T) {
	level := GenerateLevel(12345, 5.0)
	// Submitting exactly the hidden clicks reproduces the target curve.
	pct := MatchPercentFor(level.HiddenClicks, level.HiddenClicks, level.XRange)
	assert.Equal(t, 100, pct)
}

func TestMatchPercentMonotoneUnderInterpolation(t *testing.T) {
	// Interpolating samples toward the true hidden points must never
	// decrease the match percentage. Single-mode level so the shape
	// comparison has no secondary optima. The whole interpolation path must
	// stay inside the level's x-range: submissions outside it are rejected
	// at ingestion, and off-grid mass would skew the peak normalization.
	level := GenerateLevel(4242, 1.0)
	require.Equal(t, 1, level.NumModes)

	const offset = 1.5
	start := make([]float64, len(level.HiddenClicks))
	for i, c := range level.HiddenClicks {
		start[i] = c + offset
		require.LessOrEqual(t, start[i], level.XRange[1])
	}

	prev := -1
	for _, frac := range []float64{0, 0.25, 0.5, 0.75, 1} {
		samples := make([]float64, len(start))
		for i := range samples {
			samples[i] = start[i] + (level.HiddenClicks[i]-start[i])*frac
		}
		pct := MatchPercentFor(samples, level.HiddenClicks, level.XRange)
		assert.GreaterOrEqual(t, pct, prev, "match%% decreased at frac %.2f", frac)
		prev = pct
	}
	assert.Equal(t, 100, prev)
}

func TestNormalizedMSEEmptyIsWorstCase(t *testing.T) {
	level := GenerateLevel(1, 3.0)
	evalPoints := Linspace(level.XRange[0], level.XRange[1], KDEEvalPoints)
	assert.Equal(t, 1.0, NormalizedMSE(nil, level.HiddenClicks, evalPoints))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		mse       float64
		elapsedMs int64
		want      int
	}{
		{"perfect and instant", 0, 0, 10000},
		{"perfect at buzzer", 0, 30000, 8000},
		{"perfect past buzzer", 0, 60000, 8000},
		{"worst case", 1, 30000, 79},
		{"half time bonus", 0, 15000, 9000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.mse, tt.elapsedMs))
		})
	}
}

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1200, 1200), 1e-12)
	assert.InDelta(t, 0.64, ExpectedScore(1300, 1200), 0.005)

	// Symmetric: the two expectations always sum to 1.
	assert.InDelta(t, 1.0, ExpectedScore(1500, 1100)+ExpectedScore(1100, 1500), 1e-12)
}

func TestEloDeltas(t *testing.T) {
	winnerDelta, loserDelta := EloDeltas(1200, 1200)
	assert.Equal(t, 16, winnerDelta)
	assert.Equal(t, -16, loserDelta)

	// Upset win pays more.
	upsetDelta, _ := EloDeltas(1100, 1500)
	assert.Greater(t, upsetDelta, 16)

	// Expected win pays less.
	favoriteDelta, _ := EloDeltas(1500, 1100)
	assert.Less(t, favoriteDelta, 16)
}
