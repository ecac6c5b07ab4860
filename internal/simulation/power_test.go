package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/gdr"
)

// smallScenario keeps replicate fits quick: few transects, few years,
// no random intercept to integrate.
func smallScenario(habitatEffect, trendEffect float64) *Scenario {
	return &Scenario{
		NumTransects:      4,
		PointsPerTransect: 3,
		Years:             []int{2010, 2012, 2014},
		Habitats:          []string{"forest", "shrub"},
		Baseline:          6,
		HabitatEffect:     habitatEffect,
		TrendEffect:       trendEffect,
		Sigma:             45,
		Kappa:             0.2,
		GroupSD:           0,
		DistanceBreaks:    []float64{0, 50, 100},
		RemovalPeriods:    []float64{3, 2, 5},
	}
}

func TestPowerValidation(t *testing.T) {
	sc := smallScenario(0.5, 0)
	spec, err := gdr.NewSpec("habitat", "~habitat", "~1", "~1")
	require.NoError(t, err)
	fitter := gdr.NewMLFitter()

	tests := []struct {
		name string
		opts PowerOptions
	}{
		{"no replicates", PowerOptions{Replicates: 0, Alpha: 0.05, Spec: spec, Targets: []string{"habitatshrub"}}},
		{"bad alpha", PowerOptions{Replicates: 5, Alpha: 1.5, Spec: spec, Targets: []string{"habitatshrub"}}},
		{"no targets", PowerOptions{Replicates: 5, Alpha: 0.05, Spec: spec}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Power(context.Background(), sc, fitter, tt.opts)
			require.Error(t, err)
		})
	}
}

func TestPowerDetectsLargeEffect(t *testing.T) {
	if testing.Short() {
		t.Skip("repeated model fitting is slow")
	}

	sc := smallScenario(1.2, 0)
	spec, err := gdr.NewSpec("habitat", "~habitat", "~1", "~1")
	require.NoError(t, err)

	results, err := Power(context.Background(), sc, gdr.NewMLFitter(), PowerOptions{
		Replicates: 6,
		Workers:    2,
		Seed:       20240817,
		Alpha:      0.05,
		Spec:       spec,
		Targets:    []string{"habitatshrub"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "habitatshrub", res.Coefficient)
	assert.Positive(t, res.Replicates)
	// A log-scale effect this large is essentially always detected.
	assert.Greater(t, res.Power, 0.5)
	assert.Greater(t, res.MeanEstimate, 0.0)
}

func TestPowerDeterministicUnderSeed(t *testing.T) {
	if testing.Short() {
		t.Skip("repeated model fitting is slow")
	}

	sc := smallScenario(0.6, 0)
	spec, err := gdr.NewSpec("habitat", "~habitat", "~1", "~1")
	require.NoError(t, err)
	opts := PowerOptions{
		Replicates: 4,
		Workers:    3,
		Seed:       11,
		Alpha:      0.05,
		Spec:       spec,
		Targets:    []string{"habitatshrub"},
	}

	a, err := Power(context.Background(), sc, gdr.NewMLFitter(), opts)
	require.NoError(t, err)
	b, err := Power(context.Background(), sc, gdr.NewMLFitter(), opts)
	require.NoError(t, err)
	assert.Equal(t, a, b, "worker scheduling must not change the result")
}

func TestPowerHonoursCancellation(t *testing.T) {
	sc := smallScenario(0.5, 0)
	spec, err := gdr.NewSpec("habitat", "~habitat", "~1", "~1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Power(ctx, sc, gdr.NewMLFitter(), PowerOptions{
		Replicates: 3,
		Alpha:      0.05,
		Spec:       spec,
		Targets:    []string{"habitatshrub"},
	})
	require.ErrorIs(t, err, context.Canceled)
}
