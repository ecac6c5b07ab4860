// Package predict derives reportable quantities from a fitted
// distance-removal model: natural-scale point predictions with confidence
// intervals, and Monte-Carlo summaries of per-occasion latent abundance.
package predict

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/gdr"
	"github.com/pointcount/avifauna/internal/survey"
)

// Prediction is one natural-scale model prediction with its interval,
// aligned row-for-row with the covariate table it was computed from.
type Prediction struct {
	Estimate float64
	SE       float64 // standard error on the natural scale (delta method)
	Lower    float64
	Upper    float64
}

// Predict computes point predictions and interval bounds for a submodel on
// the given covariate rows. Intervals are symmetric on the link scale and
// exponentiated, so bounds are always positive. level is the interval
// coverage, e.g. 0.95.
func Predict(fm *gdr.FittedModel, sub gdr.Submodel, covs []survey.OccasionKey, level float64) ([]Prediction, error) {
	if level <= 0 || level >= 1 {
		return nil, errors.Newf("confidence level must be in (0, 1), got %v", level).
			Component("predict").
			Category(errors.CategoryConfiguration).
			Build()
	}

	eta, se, err := fm.LinearPredictor(sub, covs)
	if err != nil {
		return nil, err
	}

	scale := 1.0
	if sub == gdr.SubAbundance && fm.Spec.Scale == gdr.ScaleDensity {
		// Convert per-point abundance to birds per hectare within the
		// truncation circle.
		radius := fm.Frame().MaxDistance()
		scale = 10000 / (math.Pi * radius * radius)
	}

	z := distuv.UnitNormal.Quantile(0.5 + level/2)
	out := make([]Prediction, len(eta))
	for i := range eta {
		est := math.Exp(eta[i]) * scale
		out[i] = Prediction{
			Estimate: est,
			SE:       est * se[i], // delta method: d/deta exp(eta) = exp(eta)
			Lower:    math.Exp(eta[i]-z*se[i]) * scale,
			Upper:    math.Exp(eta[i]+z*se[i]) * scale,
		}
	}
	return out, nil
}
