package simulation

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScenarioDesign(t *testing.T) {
	sc := DefaultScenario(0.5, -0.05)
	assert.Equal(t, 11, sc.NumTransects)
	assert.Equal(t, 5, sc.PointsPerTransect)
	assert.Len(t, sc.Years, 15)
	assert.NotContains(t, sc.Years, 2015, "the skipped survey year stays out of the design")
	assert.Equal(t, 11*5*15, sc.NumOccasions())
}

func TestScenarioSimulateShape(t *testing.T) {
	sc := DefaultScenario(0.4, -0.03)
	f, err := sc.Simulate(rand.New(rand.NewPCG(7, 11)))
	require.NoError(t, err)

	covs := f.Occasions()
	require.Len(t, covs, sc.NumOccasions())
	assert.Len(t, f.DistanceCounts(), sc.NumOccasions())
	assert.Len(t, f.RemovalCounts(), sc.NumOccasions())

	habitats := make(map[string]bool)
	transects := make(map[string]bool)
	for _, c := range covs {
		habitats[c.Habitat] = true
		transects[c.Transect] = true
	}
	assert.Len(t, habitats, len(sc.Habitats))
	assert.Len(t, transects, sc.NumTransects)
}

func TestScenarioSimulateDeterministicUnderSeed(t *testing.T) {
	sc := DefaultScenario(0.4, -0.03)

	a, err := sc.Simulate(rand.New(rand.NewPCG(3, 5)))
	require.NoError(t, err)
	b, err := sc.Simulate(rand.New(rand.NewPCG(3, 5)))
	require.NoError(t, err)
	assert.Equal(t, a.DistanceCounts(), b.DistanceCounts())
	assert.Equal(t, a.RemovalCounts(), b.RemovalCounts())

	c, err := sc.Simulate(rand.New(rand.NewPCG(3, 6)))
	require.NoError(t, err)
	assert.NotEqual(t, a.DistanceCounts(), c.DistanceCounts())
}

func TestScenarioHabitatEffectShiftsCounts(t *testing.T) {
	// A strong positive habitat effect should push the non-reference
	// habitat's mean count well above the reference habitat's.
	sc := DefaultScenario(1.5, 0)
	sc.GroupSD = 0
	f, err := sc.Simulate(rand.New(rand.NewPCG(17, 19)))
	require.NoError(t, err)

	covs := f.Occasions()
	totals := f.TotalCounts()
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := range covs {
		sums[covs[i].Habitat] += float64(totals[i])
		counts[covs[i].Habitat]++
	}
	ref := sc.Habitats[0]
	alt := sc.Habitats[1]
	assert.Greater(t, sums[alt]/float64(counts[alt]), sums[ref]/float64(counts[ref]))
}

func TestScenarioValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"no transects", func(sc *Scenario) { sc.NumTransects = 0 }},
		{"no years", func(sc *Scenario) { sc.Years = nil }},
		{"no habitats", func(sc *Scenario) { sc.Habitats = nil }},
		{"zero baseline", func(sc *Scenario) { sc.Baseline = 0 }},
		{"negative sigma", func(sc *Scenario) { sc.Sigma = -1 }},
		{"zero kappa", func(sc *Scenario) { sc.Kappa = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := DefaultScenario(0.5, -0.05)
			tt.mutate(sc)
			_, err := sc.Simulate(rand.New(rand.NewPCG(1, 2)))
			require.Error(t, err)
		})
	}
}
