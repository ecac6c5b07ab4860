package simulation

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/gdr"
	"github.com/pointcount/avifauna/internal/logging"
)

// PowerOptions configures a power analysis.
type PowerOptions struct {
	Replicates int
	Workers    int   // concurrent fits, 0 for GOMAXPROCS
	Seed       int64 // base seed; replicate r uses a seed derived from (Seed, r)
	Alpha      float64
	Spec       gdr.ModelSpec // model refitted to every simulated dataset
	Targets    []string      // abundance-submodel coefficient names under test
}

// PowerResult reports the detection rate of one target effect: the share
// of replicates whose Wald test rejected at alpha.
type PowerResult struct {
	Coefficient  string
	Power        float64
	Replicates   int // replicates contributing a usable test
	Failed       int // replicates with failed fits or unusable standard errors
	MeanEstimate float64
}

// replicateOutcome is the per-replicate Wald outcome for every target.
type replicateOutcome struct {
	ok        bool
	estimates []float64
	rejected  []bool
}

// Power estimates, by simulation, the probability of detecting the
// scenario's effects. Replicates fan out over Workers goroutines; each
// derives its own RNG from the base seed and writes to its own slot, so
// the result does not depend on scheduling.
func Power(ctx context.Context, sc *Scenario, fitter gdr.Fitter, opts PowerOptions) ([]PowerResult, error) {
	if opts.Replicates < 1 {
		return nil, errors.Newf("power analysis needs at least one replicate").
			Component("simulation").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		return nil, errors.Newf("alpha must be in (0, 1), got %v", opts.Alpha).
			Component("simulation").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if len(opts.Targets) == 0 {
		return nil, errors.Newf("no target coefficients named").
			Component("simulation").
			Category(errors.CategoryConfiguration).
			Build()
	}

	logger := logging.ForService("power-analysis")
	zCrit := distuv.UnitNormal.Quantile(1 - opts.Alpha/2)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]replicateOutcome, opts.Replicates)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r := range opts.Replicates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[r] = runReplicate(gctx, sc, fitter, opts, r, zCrit, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]PowerResult, len(opts.Targets))
	for ti, name := range opts.Targets {
		res := PowerResult{Coefficient: name}
		var rejected int
		var sumEst float64
		for r := range outcomes {
			if !outcomes[r].ok {
				res.Failed++
				continue
			}
			res.Replicates++
			sumEst += outcomes[r].estimates[ti]
			if outcomes[r].rejected[ti] {
				rejected++
			}
		}
		if res.Replicates > 0 {
			res.Power = float64(rejected) / float64(res.Replicates)
			res.MeanEstimate = sumEst / float64(res.Replicates)
		}
		results[ti] = res
	}

	for _, res := range results {
		logger.Info("power estimated",
			"coefficient", res.Coefficient,
			"power", res.Power,
			"replicates", res.Replicates,
			"failed", res.Failed)
	}
	return results, nil
}

func runReplicate(ctx context.Context, sc *Scenario, fitter gdr.Fitter, opts PowerOptions, r int, zCrit float64, logger *slog.Logger) replicateOutcome {
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(r)+1))
	f, err := sc.Simulate(rng)
	if err != nil {
		logger.Warn("replicate simulation failed", "replicate", r, "error", err)
		return replicateOutcome{}
	}

	fm, err := fitter.Fit(ctx, f, opts.Spec)
	if err != nil {
		logger.Warn("replicate fit failed", "replicate", r, "error", err)
		return replicateOutcome{}
	}

	out := replicateOutcome{
		ok:        true,
		estimates: make([]float64, len(opts.Targets)),
		rejected:  make([]bool, len(opts.Targets)),
	}
	for ti, name := range opts.Targets {
		coef, err := fm.Coefficient(gdr.SubAbundance, name)
		if err != nil || math.IsNaN(coef.SE) || coef.SE == 0 {
			return replicateOutcome{}
		}
		out.estimates[ti] = coef.Estimate
		out.rejected[ti] = math.Abs(coef.Estimate/coef.SE) > zCrit
	}
	return out
}
