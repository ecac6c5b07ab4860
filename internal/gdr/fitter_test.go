package gdr

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/frame"
	"github.com/pointcount/avifauna/internal/survey"
)

func mustSpec(t *testing.T, name, lam, dist, rem string) ModelSpec {
	t.Helper()
	spec, err := NewSpec(name, lam, dist, rem)
	require.NoError(t, err)
	return spec
}

// buildTestFrame makes a frame whose occasions cycle through two transects
// and two habitats, with the standard 0/50/100 breaks and 3/2/5 periods.
func buildTestFrame(t *testing.T, yDist, yRem [][]int) *frame.SurveyFrame {
	t.Helper()
	n := len(yDist)
	sum := &survey.Summary{Distance: yDist, Removal: yRem}
	habitats := []string{"forest", "shrub"}
	for i := range n {
		sum.Occasions = append(sum.Occasions, survey.OccasionKey{
			Transect: fmt.Sprintf("T%02d", i%4),
			Point:    fmt.Sprintf("P%d", i),
			Year:     2010 + i%5,
			DOY:      150 + i%10,
			Habitat:  habitats[i%2],
		})
	}
	f, err := frame.New(sum, []float64{0, 50, 100}, []float64{3, 2, 5}, "m", 1)
	require.NoError(t, err)
	return f
}

// simulatedFrame draws counts for n occasions from known parameters.
func simulatedFrame(t *testing.T, n int, lambda, sigma, kappa float64, seed uint64) *frame.SurveyFrame {
	t.Helper()
	empty := make([][]int, n)
	emptyRem := make([][]int, n)
	for i := range n {
		empty[i] = []int{0, 0}
		emptyRem[i] = []int{0, 0, 0}
	}
	f := buildTestFrame(t, empty, emptyRem)

	params := SimulationParams{
		Lambda: make([]float64, n),
		Sigma:  make([]float64, n),
		Kappa:  make([]float64, n),
	}
	for i := range n {
		params.Lambda[i] = lambda
		params.Sigma[i] = sigma
		params.Kappa[i] = kappa
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	yDist, yRem := SimulateCounts(rng, f, params)
	sim, err := f.WithCounts(yDist, yRem)
	require.NoError(t, err)
	return sim
}

func TestFitInterceptOnlyModel(t *testing.T) {
	if testing.Short() {
		t.Skip("model fitting is slow")
	}
	f := simulatedFrame(t, 120, 5.0, 45.0, 0.2, 42)

	fitter := NewMLFitter()
	fm, err := fitter.Fit(context.Background(), f, mustSpec(t, "null", "~1", "~1", "~1"))
	require.NoError(t, err)

	assert.True(t, fm.Converged)
	assert.Equal(t, 3, fm.NumParams())
	assert.True(t, fm.LogLikelihood() < 0 && !math.IsInf(fm.LogLikelihood(), 0))

	coefs := fm.Coefficients()
	require.Len(t, coefs, 3)
	for _, c := range coefs {
		assert.False(t, math.IsNaN(c.Estimate), "estimate for %s", c.Name)
	}

	// Loose recovery checks on a moderate simulated dataset.
	lamHat := math.Exp(coefs[0].Estimate)
	assert.Greater(t, lamHat, 1.0)
	assert.Less(t, lamHat, 25.0)
	assert.Greater(t, fm.DetectionScale(), 10.0)
	assert.Less(t, fm.DetectionScale(), 200.0)

	probs := fm.DetectionProbs()
	require.Len(t, probs, 120)
	for _, p := range probs {
		assert.Greater(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("model fitting is slow")
	}
	f := simulatedFrame(t, 60, 4.0, 40.0, 0.25, 7)
	fitter := NewMLFitter()

	a, err := fitter.Fit(context.Background(), f, mustSpec(t, "m", "~habitat", "~1", "~1"))
	require.NoError(t, err)
	b, err := fitter.Fit(context.Background(), f, mustSpec(t, "m", "~habitat", "~1", "~1"))
	require.NoError(t, err)

	assert.Equal(t, a.LogLikelihood(), b.LogLikelihood(), "refitting the same frame is bit-identical")
	for i := range a.Coefficients() {
		assert.Equal(t, a.Coefficients()[i].Estimate, b.Coefficients()[i].Estimate)
	}
}

func TestFitRejectsBadSpecs(t *testing.T) {
	f := buildTestFrame(t, [][]int{{1, 0}, {0, 1}}, [][]int{{1, 0, 0}, {1, 0, 0}})
	fitter := NewMLFitter()
	ctx := context.Background()

	_, err := fitter.Fit(ctx, f, ModelSpec{Name: "nil formulas"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	spec := mustSpec(t, "random on detection", "~1", "~1+(1|transect)", "~1")
	_, err = fitter.Fit(ctx, f, spec)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestFittedModelImmutableUnderRefit(t *testing.T) {
	if testing.Short() {
		t.Skip("model fitting is slow")
	}
	f := simulatedFrame(t, 40, 3.0, 40.0, 0.2, 11)
	fitter := NewMLFitter()

	first, err := fitter.Fit(context.Background(), f, mustSpec(t, "null", "~1", "~1", "~1"))
	require.NoError(t, err)
	ll := first.LogLikelihood()
	est := first.Coefficients()[0].Estimate

	_, err = fitter.Fit(context.Background(), f, mustSpec(t, "habitat", "~habitat", "~1", "~1"))
	require.NoError(t, err)

	assert.Equal(t, ll, first.LogLikelihood())
	assert.Equal(t, est, first.Coefficients()[0].Estimate)
}

func TestLinearPredictorNewData(t *testing.T) {
	if testing.Short() {
		t.Skip("model fitting is slow")
	}
	f := simulatedFrame(t, 80, 4.0, 45.0, 0.2, 3)
	fitter := NewMLFitter()
	fm, err := fitter.Fit(context.Background(), f, mustSpec(t, "habitat", "~habitat", "~1", "~1"))
	require.NoError(t, err)

	newCovs := []survey.OccasionKey{
		{Habitat: "forest", Year: 2010},
		{Habitat: "shrub", Year: 2010},
	}
	eta, se, err := fm.LinearPredictor(SubAbundance, newCovs)
	require.NoError(t, err)
	require.Len(t, eta, 2)
	require.Len(t, se, 2)
	assert.NotEqual(t, eta[0], eta[1], "habitat effect shifts the linear predictor")

	_, _, err = fm.LinearPredictor(SubAbundance, []survey.OccasionKey{{Habitat: "tundra"}})
	require.Error(t, err, "unseen habitat level is rejected")
}

func TestSimulateMatchesCrossTotals(t *testing.T) {
	f := buildTestFrame(t,
		[][]int{{2, 1}, {0, 3}},
		[][]int{{1, 1, 1}, {3, 0, 0}})
	params := SimulationParams{
		Lambda: []float64{4, 4},
		Sigma:  []float64{40, 40},
		Kappa:  []float64{0.2, 0.2},
	}
	rng := rand.New(rand.NewPCG(1, 2))
	yDist, yRem := SimulateCounts(rng, f, params)
	for i := range yDist {
		var d, r int
		for _, y := range yDist[i] {
			d += y
		}
		for _, y := range yRem[i] {
			r += y
		}
		assert.Equal(t, d, r, "occasion %d", i)
	}
}

func TestSimulateCountsDeterministicUnderSeed(t *testing.T) {
	f := buildTestFrame(t, [][]int{{0, 0}}, [][]int{{0, 0, 0}})
	params := SimulationParams{Lambda: []float64{6}, Sigma: []float64{40}, Kappa: []float64{0.3}}

	a1, r1 := SimulateCounts(rand.New(rand.NewPCG(9, 9)), f, params)
	a2, r2 := SimulateCounts(rand.New(rand.NewPCG(9, 9)), f, params)
	assert.Equal(t, a1, a2)
	assert.Equal(t, r1, r2)
}
