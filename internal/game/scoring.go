package game

import "math"

const (
	// BattleDurationMs is the fixed battle length the time bonus decays over.
	BattleDurationMs = 30_000

	// JackpotThreshold is the match percentage that ends a battle instantly.
	JackpotThreshold = 98
)

// NormalizedMSE compares a player's samples to the hidden target by
// peak-normalizing both curves and taking the mean squared error across the
// evaluation grid. Normalizing by each curve's own maximum makes the metric
// scale-invariant on the y-axis, so sample count alone cannot game it.
// An empty sample set scores the worst-case MSE of 1.
func NormalizedMSE(samples, hiddenClicks []float64, evalPoints []float64) float64 {
	if len(samples) == 0 {
		return 1
	}

	pVals := ComputeKDE(hiddenClicks, evalPoints)
	qVals := ComputeKDE(samples, evalPoints)
	pMax := maxOf(pVals)
	qMax := maxOf(qVals)

	mse := 0.0
	for i := range evalPoints {
		var p, q float64
		if pMax > 0 {
			p = pVals[i] / pMax
		}
		if qMax > 0 {
			q = qVals[i] / qMax
		}
		mse += (p - q) * (p - q)
	}
	return mse / float64(len(evalPoints))
}

// MatchPercent maps an MSE to the 0-100 match percentage shown to players.
func MatchPercent(mse float64) int {
	return int(math.Round(100 / (1 + 100*mse)))
}

// MatchPercentFor computes the match percentage for a sample set against the
// hidden target. An empty set is 0.
func MatchPercentFor(samples, hiddenClicks []float64, xRange [2]float64) int {
	if len(samples) == 0 {
		return 0
	}
	evalPoints := Linspace(xRange[0], xRange[1], KDEEvalPoints)
	return MatchPercent(NormalizedMSE(samples, hiddenClicks, evalPoints))
}

// Score combines an accuracy term worth up to 8000 points with a time bonus
// worth up to 2000 that decays to zero at the battle duration.
func Score(mse float64, elapsedMs int64) int {
	matchScore := math.Round(8000 / (1 + 100*mse))
	elapsed := math.Max(0, float64(elapsedMs))
	timeBonus := math.Round(2000 * math.Max(0, 1-elapsed/BattleDurationMs))
	return int(matchScore + timeBonus)
}
