package game

import "math"

// SeededRandom is a Mulberry32 PRNG. The same seed always produces the same
// sequence, which is what lets the server re-derive any level from the seed
// embedded in a battle id instead of trusting client-supplied points. All
// mixing arithmetic is on uint32 so the sequence matches other
// implementations that use 32-bit wraparound semantics.
type SeededRandom struct {
	state uint32
}

// NewSeededRandom creates a generator. Seeds outside the 32-bit range are
// truncated, matching `seed | 0` semantics elsewhere.
func NewSeededRandom(seed int64) *SeededRandom {
	return &SeededRandom{state: uint32(seed)}
}

// Next returns a uniform float in [0, 1).
func (r *SeededRandom) Next() float64 {
	r.state += 0x6d2b79f5
	t := r.state
	t = (t ^ (t >> 15)) * (1 | t)
	t = (t + (t^(t>>7))*(61|t)) ^ t
	return float64(t^(t>>14)) / 4294967296.0
}

// Range returns a uniform float in [min, max).
func (r *SeededRandom) Range(min, max float64) float64 {
	return min + r.Next()*(max-min)
}

// Int returns a uniform integer in [min, max] (inclusive).
func (r *SeededRandom) Int(min, max int) int {
	return int(math.Floor(r.Range(float64(min), float64(max)+1)))
}

// Gaussian returns a normal deviate via Box-Muller, consuming two draws.
func (r *SeededRandom) Gaussian(mean, std float64) float64 {
	u1 := r.Next()
	if u1 == 0 {
		u1 = 1e-10 // avoid log(0)
	}
	u2 := r.Next()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + z*std
}

// Shuffle permutes xs in place (Fisher-Yates).
func (r *SeededRandom) Shuffle(xs []float64) {
	for i := len(xs) - 1; i > 0; i-- {
		j := r.Int(0, i)
		xs[i], xs[j] = xs[j], xs[i]
	}
}
