// Package analysis orchestrates the full pipeline: load the survey
// records, fit and rank the candidate models, summarize abundance, check
// the rerun against the recorded statistics, and render the artifacts.
package analysis

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pointcount/avifauna/internal/conf"
	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/frame"
	"github.com/pointcount/avifauna/internal/gdr"
	"github.com/pointcount/avifauna/internal/logging"
	"github.com/pointcount/avifauna/internal/predict"
	"github.com/pointcount/avifauna/internal/selection"
	"github.com/pointcount/avifauna/internal/simulation"
	"github.com/pointcount/avifauna/internal/survey"
)

// Result carries everything a completed analysis produced.
type Result struct {
	Frame      *frame.SurveyFrame
	Models     map[string]*gdr.FittedModel
	Table      *selection.Table
	Best       *gdr.FittedModel
	Trend      []TrendCell
	Latent     map[string]predict.LatentSummary
	GOF        *simulation.GOFResult
	Statistics map[string]float64
}

// TrendCell is one habitat-year abundance prediction.
type TrendCell struct {
	Habitat string
	Year    int
	predict.Prediction
}

// CandidateSpecs builds the candidate model set: abundance structured by
// habitat, year, their combinations or nothing, with shared
// intercept-only detection submodels. randomGroup adds a grouped random
// intercept to every abundance formula, "" leaves it out.
func CandidateSpecs(randomGroup string) ([]gdr.ModelSpec, error) {
	abundance := []struct {
		name    string
		formula string
	}{
		{"null", "~1"},
		{"habitat", "~habitat"},
		{"year", "~year"},
		{"habitat+year", "~habitat+year"},
		{"habitat*year", "~habitat*year"},
	}

	specs := make([]gdr.ModelSpec, 0, len(abundance))
	for _, a := range abundance {
		f := a.formula
		if randomGroup != "" {
			f += "+(1|" + randomGroup + ")"
		}
		spec, err := gdr.NewSpec(a.name, f, "~1", "~1")
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Run executes the observational branch of the pipeline and returns its
// result. Artifact rendering is left to the caller so the power branch
// can reuse the same fitting path.
func Run(ctx context.Context, settings *conf.Settings, fitter gdr.Fitter) (*Result, error) {
	logger := logging.ForService("analysis")
	start := time.Now()

	f, err := loadFrame(settings)
	if err != nil {
		return nil, err
	}
	logger.Info("survey data loaded",
		"occasions", f.NumOccasions(),
		"birds", sumCounts(f.TotalCounts()))

	specs, err := CandidateSpecs(settings.Analysis.RandomIntercept)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Frame:      f,
		Models:     make(map[string]*gdr.FittedModel, len(specs)),
		Statistics: make(map[string]float64),
	}
	candidates := make([]selection.Candidate, 0, len(specs))
	for _, spec := range specs {
		fm, err := fitter.Fit(ctx, f, spec)
		if err != nil {
			return nil, errors.New(err).
				Component("analysis").
				Category(errors.CategoryModelFit).
				Context("model", spec.Name).
				Build()
		}
		logger.Info("model fitted",
			"model", spec.Name,
			"loglik", fm.LogLikelihood(),
			"k", fm.NumParams())
		res.Models[spec.Name] = fm
		candidates = append(candidates, fm)
	}

	res.Table, err = selection.Rank(candidates)
	if err != nil {
		return nil, err
	}
	best := res.Table.Best()
	res.Best = res.Models[best.Name]
	logger.Info("model selection complete", "best", best.Name, "aic", best.AIC, "weight", best.Weight)

	for _, row := range res.Table.Rows {
		res.Statistics["aic_"+statKey(row.Name)] = row.AIC
	}
	res.Statistics["best_model_weight"] = best.Weight

	if res.Trend, err = predictTrend(res.Best, f, settings.Analysis.ConfidenceLevel); err != nil {
		return nil, err
	}
	habitats, years := designLevels(f)
	addTrendStatistics(res.Statistics, res.Trend, habitats, years)

	res.Latent, err = predict.SummarizeLatent(res.Best,
		settings.Analysis.PosteriorDraws,
		settings.Analysis.Seed,
		settings.Analysis.ConfidenceLevel,
		predict.MeanByHabitat)
	if err != nil {
		return nil, err
	}

	res.GOF, err = simulation.BootstrapGOF(ctx, res.Best, fitter,
		settings.Simulation.BootstrapReplicates,
		settings.Simulation.Workers,
		settings.Analysis.Seed)
	if err != nil {
		return nil, err
	}
	res.Statistics["gof_p_value"] = res.GOF.PValue

	logger.Info("analysis complete", "elapsed", time.Since(start))
	return res, nil
}

// loadFrame reads, filters and aggregates the survey records into the
// modeling frame.
func loadFrame(settings *conf.Settings) (*frame.SurveyFrame, error) {
	loader := survey.NewLoader(settings.Survey.YearRetained)
	records, err := loader.LoadFile(settings.Survey.InputPath)
	if err != nil {
		return nil, err
	}
	sum, err := survey.Aggregate(records)
	if err != nil {
		return nil, err
	}
	return frame.New(sum,
		settings.Survey.DistanceBreaks,
		settings.Survey.RemovalPeriods,
		settings.Survey.DistanceUnit,
		settings.Survey.NumPrimary)
}

// predictTrend predicts abundance for every habitat-year combination
// present in the data.
func predictTrend(fm *gdr.FittedModel, f *frame.SurveyFrame, level float64) ([]TrendCell, error) {
	habitats, years := designLevels(f)

	var covs []survey.OccasionKey
	for _, h := range habitats {
		for _, y := range years {
			covs = append(covs, survey.OccasionKey{Habitat: h, Year: y})
		}
	}
	preds, err := predict.Predict(fm, gdr.SubAbundance, covs, level)
	if err != nil {
		return nil, err
	}

	cells := make([]TrendCell, len(covs))
	for i := range covs {
		cells[i] = TrendCell{
			Habitat:    covs[i].Habitat,
			Year:       covs[i].Year,
			Prediction: preds[i],
		}
	}
	return cells, nil
}

// designLevels returns the habitats in first-appearance order and the
// years ascending, as observed in the frame.
func designLevels(f *frame.SurveyFrame) (habitats []string, years []int) {
	seenH := make(map[string]bool)
	seenY := make(map[int]bool)
	for _, c := range f.Occasions() {
		if !seenH[c.Habitat] {
			seenH[c.Habitat] = true
			habitats = append(habitats, c.Habitat)
		}
		if !seenY[c.Year] {
			seenY[c.Year] = true
			years = append(years, c.Year)
		}
	}
	sort.Ints(years)
	return habitats, years
}

// addTrendStatistics records the two headline numbers of the published
// analysis: predicted abundance for the reference habitat in the first
// survey year, and for the final habitat-year combination. The reference
// habitat is the first-appearance level, the same one the design encoding
// absorbs into the intercept.
func addTrendStatistics(stats map[string]float64, trend []TrendCell, habitats []string, years []int) {
	if len(habitats) == 0 || len(years) == 0 || len(trend) == 0 {
		return
	}

	cell := func(habitat string, year int) (float64, bool) {
		for _, c := range trend {
			if c.Habitat == habitat && c.Year == year {
				return c.Estimate, true
			}
		}
		return 0, false
	}
	if v, ok := cell(habitats[0], years[0]); ok {
		stats["baseline_abundance"] = v
	}
	if v, ok := cell(habitats[len(habitats)-1], years[len(years)-1]); ok {
		stats["terminal_abundance"] = v
	}
}

// statKey turns a model name into a manifest-friendly statistic suffix,
// e.g. "habitat*year" becomes "habitat_x_year".
func statKey(name string) string {
	name = strings.ReplaceAll(name, "*", "_x_")
	name = strings.ReplaceAll(name, "+", "_")
	return name
}

func sumCounts(totals []int) int {
	var s int
	for _, n := range totals {
		s += n
	}
	return s
}
