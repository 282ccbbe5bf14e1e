package game

import (
	"math"
	"sort"
)

// GeneratedLevel is the reproducible output of GenerateLevel. Recomputable at
// will from (seed, targetDifficulty) alone; the server never trusts a
// client-supplied level, only the seed/difficulty pair.
type GeneratedLevel struct {
	Seed             int64      `json:"seed"`
	TargetDifficulty float64    `json:"targetDifficulty"`
	HiddenClicks     []float64  `json:"hiddenClicks"`
	XRange           [2]float64 `json:"xRange"`
	NumModes         int        `json:"numModes"`
	DifficultyLabel  string     `json:"difficulty"`
}

// Deterministic parameter mappings from target difficulty d in [1, 10].

func numModes(d float64) int {
	return clampInt(int(math.Round(0.5+d*0.65)), 1, 7)
}

func totalClicks(d float64) int {
	return clampInt(int(math.Round(2+d*4.3)), 3, 45)
}

func minSeparation(d float64) float64 {
	return 2.2 - d*0.14
}

func heightVariance(d float64) float64 {
	return d * 0.07
}

func noiseRatio(d float64) float64 {
	return math.Max(0, (d-4)*0.03)
}

// DifficultyLabel buckets a numeric difficulty for display.
func DifficultyLabel(d float64) string {
	switch {
	case d < 3.5:
		return "easy"
	case d < 6:
		return "medium"
	case d < 8:
		return "hard"
	default:
		return "expert"
	}
}

// GenerateLevel builds a multi-modal hidden point set from a seed and a target
// difficulty clamped to [1, 10]. Same inputs always produce the identical
// HiddenClicks slice and XRange; no state persists between calls.
func GenerateLevel(seed int64, targetDifficulty float64) GeneratedLevel {
	d := clampFloat(targetDifficulty, 1, 10)
	rng := NewSeededRandom(seed)

	nModes := numModes(d)
	nClicks := totalClicks(d)
	minSep := minSeparation(d)
	hVar := heightVariance(d)
	noise := noiseRatio(d)

	// Place mode centers with minimum separation. The rejection loop is
	// bounded at 50 attempts; the 50th draw is accepted regardless.
	centers := []float64{rng.Range(-2, 2)}
	for m := 1; m < nModes; m++ {
		spread := 3 + float64(nModes)*0.5
		var center float64
		for attempts := 0; attempts < 50; attempts++ {
			center = rng.Range(centers[0]-spread, centers[0]+spread)
			if !tooClose(center, centers, minSep) {
				break
			}
		}
		centers = append(centers, center)
	}
	sort.Float64s(centers)

	// Distribute clicks across modes, unequal weights for harder levels.
	weights := make([]float64, len(centers))
	weightSum := 0.0
	for i := range weights {
		weights[i] = math.Max(0.1, rng.Range(1-hVar, 1+hVar))
		weightSum += weights[i]
	}

	mainClicks := nClicks - int(math.Floor(noise*float64(nClicks)))
	if mainClicks < nModes {
		mainClicks = nModes
	}
	clicksPerMode := make([]int, len(weights))
	currentTotal := 0
	for i, w := range weights {
		c := int(math.Round(float64(mainClicks) * w / weightSum))
		if c < 1 {
			c = 1
		}
		clicksPerMode[i] = c
		currentTotal += c
	}

	// Nudge the per-mode counts until the sum matches exactly. Decrements
	// refuse to take a mode below 1.
	for currentTotal < mainClicks {
		clicksPerMode[rng.Int(0, len(clicksPerMode)-1)]++
		currentTotal++
	}
	for currentTotal > mainClicks {
		idx := rng.Int(0, len(clicksPerMode)-1)
		if clicksPerMode[idx] > 1 {
			clicksPerMode[idx]--
			currentTotal--
		}
	}

	// Scatter clicks around each mode center.
	hiddenClicks := make([]float64, 0, nClicks)
	for m := 0; m < nModes; m++ {
		sigma := 0.2 + rng.Next()*0.3
		for j := 0; j < clicksPerMode[m]; j++ {
			hiddenClicks = append(hiddenClicks, centers[m]+rng.Gaussian(0, sigma))
		}
	}

	// Noise clicks for harder levels span the data's bounding range +/- 1.
	noiseCount := int(math.Floor(noise * float64(nClicks)))
	if noiseCount > 0 {
		rangeMin := minOf(hiddenClicks) - 1
		rangeMax := maxOf(hiddenClicks) + 1
		for i := 0; i < noiseCount; i++ {
			hiddenClicks = append(hiddenClicks, rng.Range(rangeMin, rangeMax))
		}
	}

	// Snap to 2 decimal places, matching the game's sample precision.
	for i := range hiddenClicks {
		hiddenClicks[i] = math.Round(hiddenClicks[i]*100) / 100
	}

	lo := minOf(hiddenClicks)
	hi := maxOf(hiddenClicks)
	padding := math.Max(2.5, (hi-lo)*0.2)
	xRange := [2]float64{
		math.Floor((lo-padding)*2) / 2,
		math.Ceil((hi+padding)*2) / 2,
	}

	return GeneratedLevel{
		Seed:             seed,
		TargetDifficulty: d,
		HiddenClicks:     hiddenClicks,
		XRange:           xRange,
		NumModes:         nModes,
		DifficultyLabel:  DifficultyLabel(d),
	}
}

func tooClose(candidate float64, centers []float64, minSep float64) bool {
	for _, c := range centers {
		if math.Abs(c-candidate) < minSep {
			return true
		}
	}
	return false
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
