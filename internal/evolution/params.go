// Package evolution implements the deterministic parameter generator
// (spec §4.4) and the evolution-intent classifier and blast-radius
// measure (spec §4.5).
package evolution

import "math/rand"

// Params is an immutable, deterministically-derived parameter set for
// one generation (spec §3).
type Params struct {
	Generation      int
	Seed            int64
	MutationRate    float64 // 0.01 .. 0.50
	PopulationSize  int     // 2 .. 10
	MaxRuntimeSec   int     // 240 .. 360
	CrossoverRate   float64 // 0.1 .. 0.9
}

// GenerateParams returns the deterministic parameter set for
// generation, derived from seed+generation. Repeated calls with the
// same (generation, seed) are bit-identical (spec §8).
func GenerateParams(generation int, seed int64) Params {
	rng := rand.New(rand.NewSource(seed + int64(generation)))
	return Params{
		Generation:     generation,
		Seed:           seed,
		MutationRate:   round4(0.01 + rng.Float64()*(0.50-0.01)),
		PopulationSize: 2 + rng.Intn(9), // [2, 10] inclusive
		MaxRuntimeSec:  240 + rng.Intn(121),
		CrossoverRate:  round4(0.1 + rng.Float64()*(0.9-0.1)),
	}
}

// ToMap serializes Params to a plain map, structurally round-tripping
// the field names (spec §8).
func (p Params) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"generation":      p.Generation,
		"seed":            p.Seed,
		"mutation_rate":   p.MutationRate,
		"population_size": p.PopulationSize,
		"max_runtime_sec": p.MaxRuntimeSec,
		"crossover_rate":  p.CrossoverRate,
	}
}

func round4(f float64) float64 {
	const scale = 10000.0
	if f < 0 {
		return -round4(-f)
	}
	return float64(int64(f*scale+0.5)) / scale
}
