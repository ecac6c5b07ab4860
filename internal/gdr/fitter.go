package gdr

import (
	"context"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/frame"
	"github.com/pointcount/avifauna/internal/logging"
	"github.com/pointcount/avifauna/internal/survey"
)

// Submodel names the three linear predictors of the model.
type Submodel string

const (
	SubAbundance Submodel = "lambda"
	SubDistance  Submodel = "distance"
	SubRemoval   Submodel = "removal"
	SubRandom    Submodel = "random"
)

// OutputScale selects the scale of the latent state.
type OutputScale string

const (
	ScaleAbundance OutputScale = "abundance"
	ScaleDensity   OutputScale = "density"
)

// ModelSpec is one candidate model: a name plus the three formula
// specifications.
type ModelSpec struct {
	Name      string
	Abundance *Formula
	Distance  *Formula
	Removal   *Formula
	Scale     OutputScale
}

// NewSpec parses the three formulas of a candidate model.
func NewSpec(name, abundance, distance, removal string) (ModelSpec, error) {
	var spec ModelSpec
	var err error
	if spec.Abundance, err = ParseFormula(abundance); err != nil {
		return ModelSpec{}, err
	}
	if spec.Distance, err = ParseFormula(distance); err != nil {
		return ModelSpec{}, err
	}
	if spec.Removal, err = ParseFormula(removal); err != nil {
		return ModelSpec{}, err
	}
	spec.Name = name
	spec.Scale = ScaleAbundance
	return spec, nil
}

// Fitter estimates a distance-removal abundance model on a survey frame.
// Implementations must never mutate the frame or previously returned fits.
type Fitter interface {
	Fit(ctx context.Context, f *frame.SurveyFrame, spec ModelSpec) (*FittedModel, error)
}

// MLFitter is the maximum-likelihood Fitter. The heavy numerical lifting
// (quasi-Newton minimization, numerical Hessian, Gauss-Hermite nodes) is
// gonum's.
type MLFitter struct {
	// Quadrature is the number of Gauss-Hermite nodes used to integrate
	// over the random intercept. Zero means the default of 15.
	Quadrature int

	logger *slog.Logger
}

// NewMLFitter returns a fitter with default settings.
func NewMLFitter() *MLFitter {
	return &MLFitter{logger: logging.ForService("gdr-fitter")}
}

// FittedModel is an immutable fitted candidate model.
type FittedModel struct {
	Spec      ModelSpec
	Converged bool

	frameRef *frame.SurveyFrame

	coefs  []Coefficient
	logLik float64
	k      int

	theta  []float64
	vcov   *mat.SymDense // nil when the Hessian was not invertible
	lk     *likelihood
	encLam *encoding
	encDst *encoding
	encRem *encoding

	randomGroup string
	randomSD    float64
	groupNames  []string
	groupMeans  []float64 // EB posterior means of the random intercept
}

// Fit implements Fitter.
func (m *MLFitter) Fit(ctx context.Context, f *frame.SurveyFrame, spec ModelSpec) (*FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Abundance == nil || spec.Distance == nil || spec.Removal == nil {
		return nil, errors.Newf("model %q: all three formulas must be set", spec.Name).
			Component("gdr").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if spec.Distance.RandomGroup != "" || spec.Removal.RandomGroup != "" {
		return nil, errors.Newf("model %q: random intercepts are supported on the abundance formula only", spec.Name).
			Component("gdr").
			Category(errors.CategoryConfiguration).
			Build()
	}

	covs := f.Occasions()
	encLam, err := newEncoding(spec.Abundance, covs)
	if err != nil {
		return nil, err
	}
	encDst, err := newEncoding(spec.Distance, covs)
	if err != nil {
		return nil, err
	}
	encRem, err := newEncoding(spec.Removal, covs)
	if err != nil {
		return nil, err
	}

	lk, err := m.newLikelihood(f, covs, spec, encLam, encDst, encRem)
	if err != nil {
		return nil, err
	}

	x0 := m.initialParams(f, lk)
	problem := optimize.Problem{Func: lk.negLogLik}
	result, err := optimize.Minimize(problem, x0, nil, nil)
	if err != nil {
		return nil, errors.Newf("model %q: optimization failed: %w", spec.Name, err).
			Component("gdr").
			Category(errors.CategoryModelFit).
			Context("model", spec.Name).
			Build()
	}

	theta := result.X
	logLik := -result.F
	if !isFinite(logLik) {
		return nil, errors.Newf("model %q: likelihood did not evaluate to a finite value", spec.Name).
			Component("gdr").
			Category(errors.CategoryModelFit).
			Build()
	}

	vcov := observedInformation(lk.negLogLik, theta)
	ses := standardErrors(vcov, len(theta))

	fm := &FittedModel{
		Spec:        spec,
		Converged:   result.Status != optimize.Failure && result.Status != optimize.IterationLimit,
		frameRef:    f,
		logLik:      logLik,
		k:           len(theta),
		theta:       theta,
		vcov:        vcov,
		lk:          lk,
		encLam:      encLam,
		encDst:      encDst,
		encRem:      encRem,
		randomGroup: spec.Abundance.RandomGroup,
	}
	fm.buildCoefficients(ses)
	if lk.hasRandom() {
		fm.randomSD = math.Exp(theta[len(theta)-1])
		_, fm.groupNames = groupIndex(covs, fm.randomGroup)
		fm.groupMeans = lk.posteriorGroupMeans(theta)
	}

	if m.logger != nil {
		m.logger.Info("model fitted",
			"model", spec.Name,
			"loglik", logLik,
			"params", fm.k,
			"converged", fm.Converged)
	}
	return fm, nil
}

func (m *MLFitter) newLikelihood(f *frame.SurveyFrame, covs []survey.OccasionKey, spec ModelSpec, encLam, encDst, encRem *encoding) (*likelihood, error) {
	xLam, err := encLam.buildMatrix(covs)
	if err != nil {
		return nil, err
	}
	xDist, err := encDst.buildMatrix(covs)
	if err != nil {
		return nil, err
	}
	xRem, err := encRem.buildMatrix(covs)
	if err != nil {
		return nil, err
	}

	yDist := f.DistanceCounts()
	yRem := f.RemovalCounts()
	totals := make([]float64, f.NumOccasions())
	for i, n := range f.TotalCounts() {
		totals[i] = float64(n)
	}

	lk := &likelihood{
		xLam:      xLam,
		xDist:     xDist,
		xRem:      xRem,
		pLam:      encLam.numCols(),
		pDist:     encDst.numCols(),
		pRem:      encRem.numCols(),
		totals:    totals,
		yDistance: yDist,
		yRemoval:  yRem,
		breaks:    f.DistanceBreaks(),
		durations: f.PeriodDurations(),
		constant:  logMultinomialConstant(totals, yDist, yRem),
	}

	if group := spec.Abundance.RandomGroup; group != "" {
		idx, names := groupIndex(covs, group)
		lk.groups = idx
		lk.nGroups = len(names)

		nq := m.Quadrature
		if nq <= 0 {
			nq = 15
		}
		lk.quadX = make([]float64, nq)
		lk.quadW = make([]float64, nq)
		quad.Hermite{}.FixedLocations(lk.quadX, lk.quadW, math.Inf(-1), math.Inf(1))
	}
	return lk, nil
}

// initialParams seeds the optimizer: abundance at the naive log mean count,
// detection scale at half the truncation distance, removal rate at a
// plausible per-minute detection probability, random SD modest.
func (m *MLFitter) initialParams(f *frame.SurveyFrame, lk *likelihood) []float64 {
	x0 := make([]float64, lk.numParams())

	var meanCount float64
	for _, n := range lk.totals {
		meanCount += n
	}
	meanCount /= float64(len(lk.totals))
	x0[0] = math.Log(math.Max(meanCount, 0.5))

	x0[lk.pLam] = math.Log(f.MaxDistance() / 2)
	x0[lk.pLam+lk.pDist] = math.Log(0.15)
	if lk.hasRandom() {
		x0[len(x0)-1] = math.Log(0.5)
	}
	return x0
}

func (fm *FittedModel) buildCoefficients(ses []float64) {
	add := func(sub Submodel, names []string, offset int) {
		for i, name := range names {
			fm.coefs = append(fm.coefs, Coefficient{
				Submodel: sub,
				Name:     name,
				Estimate: fm.theta[offset+i],
				SE:       ses[offset+i],
			})
		}
	}
	add(SubAbundance, fm.encLam.colNames(), 0)
	add(SubDistance, fm.encDst.colNames(), fm.lk.pLam)
	add(SubRemoval, fm.encRem.colNames(), fm.lk.pLam+fm.lk.pDist)
	if fm.lk.hasRandom() {
		last := len(fm.theta) - 1
		fm.coefs = append(fm.coefs, Coefficient{
			Submodel: SubRandom,
			Name:     "logSD(1|" + fm.Spec.Abundance.RandomGroup + ")",
			Estimate: fm.theta[last],
			SE:       ses[last],
		})
	}
}

// observedInformation inverts the numerical Hessian of the negative
// log-likelihood at the optimum. Returns nil if the Hessian is not positive
// definite.
func observedInformation(nll func([]float64) float64, theta []float64) *mat.SymDense {
	n := len(theta)
	hess := mat.NewSymDense(n, nil)
	fd.Hessian(hess, nll, theta, nil)

	var chol mat.Cholesky
	if !chol.Factorize(hess) {
		return nil
	}
	vcov := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(vcov); err != nil {
		return nil
	}
	return vcov
}

func standardErrors(vcov *mat.SymDense, n int) []float64 {
	ses := make([]float64, n)
	for i := range ses {
		if vcov == nil {
			ses[i] = math.NaN()
			continue
		}
		v := vcov.At(i, i)
		if v < 0 {
			ses[i] = math.NaN()
		} else {
			ses[i] = math.Sqrt(v)
		}
	}
	return ses
}

// --- FittedModel accessors ---

// Name returns the candidate-model name.
func (fm *FittedModel) Name() string { return fm.Spec.Name }

// LogLikelihood returns the maximized log-likelihood.
func (fm *FittedModel) LogLikelihood() float64 { return fm.logLik }

// NumParams returns the number of estimated parameters.
func (fm *FittedModel) NumParams() int { return fm.k }

// Frame returns the frame the model was fitted to.
func (fm *FittedModel) Frame() *frame.SurveyFrame { return fm.frameRef }

// Coefficients returns the estimated coefficients with standard errors.
func (fm *FittedModel) Coefficients() []Coefficient {
	out := make([]Coefficient, len(fm.coefs))
	copy(out, fm.coefs)
	return out
}

// Coefficient looks up one coefficient by submodel and name.
func (fm *FittedModel) Coefficient(sub Submodel, name string) (Coefficient, error) {
	for _, c := range fm.coefs {
		if c.Submodel == sub && c.Name == name {
			return c, nil
		}
	}
	return Coefficient{}, errors.Newf("model %q has no %s coefficient %q", fm.Spec.Name, sub, name).
		Component("gdr").
		Category(errors.CategoryNotFound).
		Build()
}

// RandomSD returns the estimated random-intercept standard deviation, or 0
// for fixed-effects models.
func (fm *FittedModel) RandomSD() float64 { return fm.randomSD }

// DetectionScale returns the half-normal detection scale at the reference
// covariate values, in the frame's distance unit.
func (fm *FittedModel) DetectionScale() float64 {
	return math.Exp(fm.theta[fm.lk.pLam])
}

// LinearPredictor evaluates a submodel's linear predictor and its standard
// error for the given covariate rows, using the fit-time encoding.
func (fm *FittedModel) LinearPredictor(sub Submodel, covs []survey.OccasionKey) (eta, se []float64, err error) {
	var enc *encoding
	var offset int
	switch sub {
	case SubAbundance:
		enc, offset = fm.encLam, 0
	case SubDistance:
		enc, offset = fm.encDst, fm.lk.pLam
	case SubRemoval:
		enc, offset = fm.encRem, fm.lk.pLam+fm.lk.pDist
	default:
		return nil, nil, errors.Newf("no linear predictor for submodel %q", sub).
			Component("gdr").
			Category(errors.CategoryNotFound).
			Build()
	}

	x, err := enc.buildMatrix(covs)
	if err != nil {
		return nil, nil, err
	}
	p := enc.numCols()
	coef := fm.theta[offset : offset+p]

	eta = make([]float64, len(covs))
	se = make([]float64, len(covs))
	for i := range covs {
		eta[i] = dot(x, i, coef)
		se[i] = fm.linearPredictorSE(x, i, offset, p)
	}
	return eta, se, nil
}

// linearPredictorSE computes sqrt(x' V x) over the submodel's block of the
// covariance matrix.
func (fm *FittedModel) linearPredictorSE(x *mat.Dense, row, offset, p int) float64 {
	if fm.vcov == nil {
		return math.NaN()
	}
	var v float64
	for a := range p {
		for b := range p {
			v += x.At(row, a) * fm.vcov.At(offset+a, offset+b) * x.At(row, b)
		}
	}
	if v < 0 {
		return math.NaN()
	}
	return math.Sqrt(v)
}

// DetectionProbs returns the per-occasion overall detection probability.
func (fm *FittedModel) DetectionProbs() []float64 {
	occ, _ := fm.lk.occasionTerms(fm.theta)
	out := make([]float64, len(occ))
	for i := range occ {
		out[i] = occ[i].pdet
	}
	return out
}

// LatentRates returns the per-occasion abundance rate with the empirical
// Bayes group intercept applied (u=0 for fixed-effects models).
func (fm *FittedModel) LatentRates() []float64 {
	occ, _ := fm.lk.occasionTerms(fm.theta)
	out := make([]float64, len(occ))
	for i := range occ {
		out[i] = occ[i].lambda
		if fm.lk.hasRandom() {
			out[i] *= math.Exp(fm.groupMeans[fm.lk.groups[i]])
		}
	}
	return out
}

// ExpectedTotals returns the marginal expected detection totals per
// occasion (lognormal correction applied under a random intercept). These
// are the fitted values residual diagnostics compare against.
func (fm *FittedModel) ExpectedTotals() []float64 {
	occ, _ := fm.lk.occasionTerms(fm.theta)
	adjust := 1.0
	if fm.lk.hasRandom() {
		adjust = math.Exp(fm.randomSD * fm.randomSD / 2)
	}
	out := make([]float64, len(occ))
	for i := range occ {
		out[i] = occ[i].lambda * adjust * occ[i].pdet
	}
	return out
}

// PearsonResiduals returns (observed - expected)/sqrt(expected) for the
// per-occasion totals.
func (fm *FittedModel) PearsonResiduals() []float64 {
	expected := fm.ExpectedTotals()
	out := make([]float64, len(expected))
	for i, e := range expected {
		out[i] = (fm.lk.totals[i] - e) / math.Sqrt(math.Max(e, 1e-12))
	}
	return out
}
