package predict

import (
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/gdr"
	"github.com/pointcount/avifauna/internal/survey"
)

// AggFunc reduces one posterior sample of per-occasion latent abundance to
// named summary values, e.g. mean abundance per habitat. covs is aligned
// with latent.
type AggFunc func(latent []float64, covs []survey.OccasionKey) map[string]float64

// LatentSummary is the Monte-Carlo summary of one aggregated quantity:
// the sample mean and the 2.5/97.5-style percentile bounds across draws.
type LatentSummary struct {
	Mean  float64
	Lower float64
	Upper float64
}

// LatentEstimates returns the empirical Bayes point estimate of latent
// abundance per occasion: the observed total plus the expected number of
// undetected birds.
func LatentEstimates(fm *gdr.FittedModel) []float64 {
	rates := fm.LatentRates()
	probs := fm.DetectionProbs()
	totals := fm.Frame().TotalCounts()
	out := make([]float64, len(totals))
	for i := range out {
		out[i] = float64(totals[i]) + rates[i]*(1-probs[i])
	}
	return out
}

// SummarizeLatent draws posterior-style samples of per-occasion latent
// abundance, applies agg to every draw, and reports the across-draw mean
// and percentile bounds for each aggregated key. Under Poisson mixing the
// number of undetected birds given the observed count is itself Poisson
// with rate lambda*(1-p), which is what each draw samples. The procedure
// is seeded for reproducibility: same seed, same summaries.
func SummarizeLatent(fm *gdr.FittedModel, draws int, seed int64, level float64, agg AggFunc) (map[string]LatentSummary, error) {
	if draws < 1 {
		return nil, errors.Newf("need at least one posterior draw, got %d", draws).
			Component("predict").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if level <= 0 || level >= 1 {
		return nil, errors.Newf("confidence level must be in (0, 1), got %v", level).
			Component("predict").
			Category(errors.CategoryConfiguration).
			Build()
	}

	rates := fm.LatentRates()
	probs := fm.DetectionProbs()
	covs := fm.Frame().Occasions()
	totals := fm.Frame().TotalCounts()

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0xda3e39cb94b95bdb))
	samples := make(map[string][]float64)
	latent := make([]float64, len(totals))
	for range draws {
		for i := range latent {
			missRate := rates[i] * (1 - probs[i])
			var undetected float64
			if missRate > 0 {
				undetected = distuv.Poisson{Lambda: missRate, Src: rng}.Rand()
			}
			latent[i] = float64(totals[i]) + undetected
		}
		for key, value := range agg(latent, covs) {
			samples[key] = append(samples[key], value)
		}
	}

	alpha := (1 - level) / 2
	out := make(map[string]LatentSummary, len(samples))
	for key, vals := range samples {
		sorted := slices.Clone(vals)
		sort.Float64s(sorted)
		out[key] = LatentSummary{
			Mean:  stat.Mean(vals, nil),
			Lower: stat.Quantile(alpha, stat.Empirical, sorted, nil),
			Upper: stat.Quantile(1-alpha, stat.Empirical, sorted, nil),
		}
	}
	return out, nil
}

// MeanByHabitat is the aggregation used in the report: mean latent
// abundance per habitat category.
func MeanByHabitat(latent []float64, covs []survey.OccasionKey) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := range covs {
		sums[covs[i].Habitat] += latent[i]
		counts[covs[i].Habitat]++
	}
	out := make(map[string]float64, len(sums))
	for h, s := range sums {
		out[h] = s / float64(counts[h])
	}
	return out
}
