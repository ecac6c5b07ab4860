package simulation

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/gdr"
	"github.com/pointcount/avifauna/internal/logging"
)

// GOFResult is the parametric-bootstrap goodness-of-fit summary for one
// fitted model.
type GOFResult struct {
	Observed   float64 // Freeman-Tukey statistic of the real fit
	PValue     float64 // share of simulated statistics at least as large
	Replicates int     // usable replicates
	Failed     int
	SimMean    float64 // mean simulated statistic
}

// freemanTukey computes sum (sqrt(observed) - sqrt(expected))^2 over the
// per-occasion totals.
func freemanTukey(observed []int, expected []float64) float64 {
	var t float64
	for i := range observed {
		d := math.Sqrt(float64(observed[i])) - math.Sqrt(math.Max(expected[i], 0))
		t += d * d
	}
	return t
}

// BootstrapGOF resimulates data from the fitted model, refits, and
// compares the refit's fit statistic with the observed one. A small
// p-value flags lack of fit. Replicates run concurrently but the result
// is seed-deterministic.
func BootstrapGOF(ctx context.Context, fm *gdr.FittedModel, fitter gdr.Fitter, replicates, workers int, seed int64) (*GOFResult, error) {
	if replicates < 1 {
		return nil, errors.Newf("bootstrap needs at least one replicate").
			Component("simulation").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	logger := logging.ForService("bootstrap-gof")
	observed := freemanTukey(fm.Frame().TotalCounts(), fm.ExpectedTotals())

	stats := make([]float64, replicates)
	failed := make([]bool, replicates)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r := range replicates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(uint64(seed)^0xb5297a4d2c7979c9, uint64(r)+1))
			yDist, yRem := fm.Simulate(rng)
			simFrame, err := fm.Frame().WithCounts(yDist, yRem)
			if err != nil {
				failed[r] = true
				return nil
			}
			refit, err := fitter.Fit(gctx, simFrame, fm.Spec)
			if err != nil {
				failed[r] = true
				return nil
			}
			stats[r] = freemanTukey(simFrame.TotalCounts(), refit.ExpectedTotals())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &GOFResult{Observed: observed}
	var atLeast int
	var sum float64
	for r := range stats {
		if failed[r] {
			res.Failed++
			continue
		}
		res.Replicates++
		sum += stats[r]
		if stats[r] >= observed {
			atLeast++
		}
	}
	if res.Replicates == 0 {
		return nil, errors.Newf("all %d bootstrap replicates failed to refit", replicates).
			Component("simulation").
			Category(errors.CategorySimulation).
			Build()
	}
	res.PValue = float64(1+atLeast) / float64(res.Replicates+1)
	res.SimMean = sum / float64(res.Replicates)

	logger.Info("bootstrap goodness of fit",
		"observed", res.Observed,
		"p_value", res.PValue,
		"replicates", res.Replicates,
		"failed", res.Failed)
	return res, nil
}
