package game

import "math"

// KDEEvalPoints is the fixed evaluation grid size shared by live feedback and
// server-side verification.
const KDEEvalPoints = 200

const bandwidthCeiling = 0.5

// Bandwidth selects a kernel width via Scott's rule with a floor and a
// ceiling. The ceiling keeps clusters resolving into distinct peaks rather
// than merging into one blob on multi-modal distributions; the floor keeps a
// handful of samples from producing needle spikes.
func Bandwidth(samples []float64) float64 {
	n := len(samples)

	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)

	variance := 0.0
	if n > 1 {
		for _, s := range samples {
			variance += (s - mean) * (s - mean)
		}
		variance /= float64(n - 1)
	}
	std := math.Sqrt(variance)

	scottH := 0.0
	if std > 0 {
		scottH = 1.06 * std * math.Pow(float64(n), -0.2)
	}
	floor := 0.35 / math.Pow(float64(n), 0.35)

	return math.Min(math.Max(floor, scottH), bandwidthCeiling)
}

// ComputeKDE evaluates a Gaussian-kernel density estimate of samples at each
// eval point. An empty sample set yields all zeros.
func ComputeKDE(samples, evalPoints []float64) []float64 {
	out := make([]float64, len(evalPoints))
	n := len(samples)
	if n == 0 {
		return out
	}

	invH := 1 / Bandwidth(samples)
	coeff := invH / (float64(n) * math.Sqrt(2*math.Pi))

	for i, x := range evalPoints {
		sum := 0.0
		for _, s := range samples {
			z := (x - s) * invH
			sum += math.Exp(-0.5 * z * z)
		}
		out[i] = coeff * sum
	}
	return out
}

// Linspace returns n evenly spaced points across [start, end].
func Linspace(start, end float64, n int) []float64 {
	if n <= 1 {
		return []float64{start}
	}
	step := (end - start) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
