package gdr

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/survey"
)

// encoding fixes how a formula maps covariate rows to design-matrix
// columns: categorical level order (first appearance in the training
// covariates, first level is the reference) and numeric origins (training
// minimum, so "year" enters as years since the first sampled year). The
// same encoding is reused for prediction so new covariate tables line up
// with the fitted coefficients.
type encoding struct {
	formula *Formula
	levels  map[string][]string
	origins map[string]float64
	cols    []string
}

func newEncoding(f *Formula, covs []survey.OccasionKey) (*encoding, error) {
	e := &encoding{
		formula: f,
		levels:  make(map[string][]string),
		origins: make(map[string]float64),
	}

	for _, t := range f.Terms {
		for _, v := range t.vars {
			if categoricalCovariates[v] {
				if _, ok := e.levels[v]; ok {
					continue
				}
				var lv []string
				for i := range covs {
					level := covariateLevel(&covs[i], v)
					if !slices.Contains(lv, level) {
						lv = append(lv, level)
					}
				}
				if len(lv) < 2 {
					return nil, errors.Newf("covariate %q has a single level %q, cannot estimate its effect", v, lv[0]).
						Component("gdr").
						Category(errors.CategoryStructure).
						Build()
				}
				e.levels[v] = lv
			} else if _, ok := e.origins[v]; !ok {
				origin := covariateNumeric(&covs[0], v)
				for i := range covs {
					origin = min(origin, covariateNumeric(&covs[i], v))
				}
				e.origins[v] = origin
			}
		}
	}

	e.cols = []string{"(Intercept)"}
	for _, t := range f.Terms {
		e.cols = append(e.cols, e.termCols(t)...)
	}
	return e, nil
}

// termCols returns the column names contributed by one term.
func (e *encoding) termCols(t term) []string {
	partsPerVar := make([][]string, len(t.vars))
	for i, v := range t.vars {
		if categoricalCovariates[v] {
			lv := e.levels[v]
			names := make([]string, 0, len(lv)-1)
			for _, level := range lv[1:] {
				names = append(names, v+level)
			}
			partsPerVar[i] = names
		} else {
			partsPerVar[i] = []string{v}
		}
	}
	if len(t.vars) == 1 {
		return partsPerVar[0]
	}
	var names []string
	for _, a := range partsPerVar[0] {
		for _, b := range partsPerVar[1] {
			names = append(names, a+":"+b)
		}
	}
	return names
}

func (e *encoding) numCols() int { return len(e.cols) }

func (e *encoding) colNames() []string { return slices.Clone(e.cols) }

// buildMatrix evaluates the design matrix for the given covariate rows
// using this encoding. Rows with categorical levels unseen at fit time are
// rejected.
func (e *encoding) buildMatrix(covs []survey.OccasionKey) (*mat.Dense, error) {
	n := len(covs)
	if n == 0 {
		return nil, errors.Newf("empty covariate table").
			Component("gdr").
			Category(errors.CategoryStructure).
			Build()
	}
	x := mat.NewDense(n, e.numCols(), nil)
	for i := range covs {
		x.Set(i, 0, 1)
		col := 1
		for _, t := range e.formula.Terms {
			vals, err := e.termValues(t, &covs[i])
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				x.Set(i, col, v)
				col++
			}
		}
	}
	return x, nil
}

// termValues evaluates one term for one covariate row, in the same order
// as termCols.
func (e *encoding) termValues(t term, c *survey.OccasionKey) ([]float64, error) {
	valsPerVar := make([][]float64, len(t.vars))
	for i, v := range t.vars {
		if categoricalCovariates[v] {
			lv := e.levels[v]
			level := covariateLevel(c, v)
			idx := slices.Index(lv, level)
			if idx < 0 {
				return nil, errors.Newf("covariate %q level %q was not present at fit time", v, level).
					Component("gdr").
					Category(errors.CategoryStructure).
					Build()
			}
			dummies := make([]float64, len(lv)-1)
			if idx > 0 {
				dummies[idx-1] = 1
			}
			valsPerVar[i] = dummies
		} else {
			valsPerVar[i] = []float64{covariateNumeric(c, t.vars[i]) - e.origins[v]}
		}
	}
	if len(t.vars) == 1 {
		return valsPerVar[0], nil
	}
	var vals []float64
	for _, a := range valsPerVar[0] {
		for _, b := range valsPerVar[1] {
			vals = append(vals, a*b)
		}
	}
	return vals, nil
}

// groupIndex assigns each covariate row to a random-effect group, in order
// of first appearance. Returns the per-row group index and group names.
func groupIndex(covs []survey.OccasionKey, name string) ([]int, []string) {
	idx := make([]int, len(covs))
	var names []string
	seen := make(map[string]int)
	for i := range covs {
		level := covariateLevel(&covs[i], name)
		g, ok := seen[level]
		if !ok {
			g = len(names)
			seen[level] = g
			names = append(names, level)
		}
		idx[i] = g
	}
	return idx, names
}

// Coefficient is one estimated fixed effect or variance component.
type Coefficient struct {
	Submodel Submodel
	Name     string
	Estimate float64
	SE       float64
}

func (c Coefficient) String() string {
	return fmt.Sprintf("%s[%s]=%.4f (SE %.4f)", c.Submodel, c.Name, c.Estimate, c.SE)
}
