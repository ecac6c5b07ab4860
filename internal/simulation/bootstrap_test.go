package simulation

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/gdr"
)

func TestFreemanTukey(t *testing.T) {
	assert.Zero(t, freemanTukey([]int{4, 9}, []float64{4, 9}))

	// (sqrt(4)-sqrt(1))^2 + (sqrt(9)-sqrt(16))^2 = 1 + 1 = 2
	assert.InDelta(t, 2.0, freemanTukey([]int{4, 9}, []float64{1, 16}), 1e-12)

	// Negative expected values clamp to zero instead of producing NaN.
	got := freemanTukey([]int{4}, []float64{-1})
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, 4.0, got, 1e-12)
}

func TestBootstrapGOFValidation(t *testing.T) {
	fm := fitScenarioModel(t)
	_, err := BootstrapGOF(context.Background(), fm, gdr.NewMLFitter(), 0, 1, 3)
	require.Error(t, err)
}

func TestBootstrapGOFWellSpecifiedModel(t *testing.T) {
	fm := fitScenarioModel(t)

	res, err := BootstrapGOF(context.Background(), fm, gdr.NewMLFitter(), 6, 2, 20240817)
	require.NoError(t, err)

	assert.Positive(t, res.Observed)
	assert.Positive(t, res.Replicates)
	assert.GreaterOrEqual(t, res.PValue, 1.0/float64(res.Replicates+1))
	assert.LessOrEqual(t, res.PValue, 1.0)
	// Data simulated from the fitted model itself should not flag gross
	// lack of fit at the smallest resolvable p-value.
	assert.Greater(t, res.PValue, 1.0/float64(res.Replicates+1))
}

func TestBootstrapGOFDeterministicUnderSeed(t *testing.T) {
	fm := fitScenarioModel(t)

	a, err := BootstrapGOF(context.Background(), fm, gdr.NewMLFitter(), 4, 3, 5)
	require.NoError(t, err)
	b, err := BootstrapGOF(context.Background(), fm, gdr.NewMLFitter(), 4, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// fitScenarioModel simulates one small dataset and fits the habitat model
// to it, shared by the bootstrap tests.
func fitScenarioModel(t *testing.T) *gdr.FittedModel {
	t.Helper()
	if testing.Short() {
		t.Skip("model fitting is slow")
	}

	sc := smallScenario(0.6, 0)
	f, err := sc.Simulate(rand.New(rand.NewPCG(23, 29)))
	require.NoError(t, err)

	spec, err := gdr.NewSpec("habitat", "~habitat", "~1", "~1")
	require.NoError(t, err)
	fm, err := gdr.NewMLFitter().Fit(context.Background(), f, spec)
	require.NoError(t, err)
	return fm
}
