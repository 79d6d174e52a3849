package evolution

import "testing"

func TestGenerateParamsIsReproducible(t *testing.T) {
	a := GenerateParams(0, 42)
	b := GenerateParams(0, 42)
	if a != b {
		t.Fatalf("expected identical params, got %+v vs %+v", a, b)
	}
}

func TestGenerateParamsDiffersAcrossGenerations(t *testing.T) {
	a := GenerateParams(0, 42)
	b := GenerateParams(1, 42)
	if a == b {
		t.Fatalf("expected different params for different generations")
	}
}

func TestGenerateParamsWithinRanges(t *testing.T) {
	for g := 0; g < 200; g++ {
		p := GenerateParams(g, 1234)
		if p.MutationRate < 0.01 || p.MutationRate > 0.50 {
			t.Fatalf("mutation_rate out of range: %v", p.MutationRate)
		}
		if p.PopulationSize < 2 || p.PopulationSize > 10 {
			t.Fatalf("population_size out of range: %v", p.PopulationSize)
		}
		if p.MaxRuntimeSec < 240 || p.MaxRuntimeSec > 360 {
			t.Fatalf("max_runtime_sec out of range: %v", p.MaxRuntimeSec)
		}
		if p.CrossoverRate < 0.1 || p.CrossoverRate > 0.9 {
			t.Fatalf("crossover_rate out of range: %v", p.CrossoverRate)
		}
	}
}

func TestParamsToMapRoundTripsFieldNames(t *testing.T) {
	p := GenerateParams(3, 7)
	m := p.ToMap()
	for _, key := range []string{"generation", "seed", "mutation_rate", "population_size", "max_runtime_sec", "crossover_rate"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing key %q in serialized params", key)
		}
	}
}
