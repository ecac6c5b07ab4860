// Package gdr fits generalized distance-removal abundance models: latent
// abundance follows a log-linear model (optionally with one grouped random
// intercept), detection is modeled jointly through a half-normal distance
// process and an exponential time-removal process. The numerical estimation
// (quasi-Newton optimization, Gauss-Hermite integration over the random
// effect) is delegated to gonum; callers interact with the Fitter interface
// and immutable FittedModel values only.
package gdr

import (
	"strings"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/survey"
)

// Covariate names usable in formulas. habitat, transect and point are
// categorical; year and doy are numeric.
var knownCovariates = map[string]bool{
	"habitat":  true,
	"year":     true,
	"doy":      true,
	"transect": true,
	"point":    true,
}

var categoricalCovariates = map[string]bool{
	"habitat":  true,
	"transect": true,
	"point":    true,
}

// term is one fixed-effect term: a single covariate or a two-way
// interaction.
type term struct {
	vars []string // length 1 (main effect) or 2 (interaction)
}

func (t term) String() string { return strings.Join(t.vars, ":") }

// Formula is a parsed model formula such as "~habitat*year + (1|transect)".
// The intercept is always included. At most one grouped random intercept is
// supported.
type Formula struct {
	Raw         string
	Terms       []term
	RandomGroup string // grouping covariate of the random intercept, "" if none
}

// ParseFormula parses a formula string. Supported syntax:
//
//	~1                       intercept only
//	~a                       main effect
//	~a+b                     additive effects
//	~a:b                     interaction term only
//	~a*b                     a + b + a:b
//	~a+(1|g)                 random intercept grouped by g
func ParseFormula(raw string) (*Formula, error) {
	s := strings.ReplaceAll(raw, " ", "")
	if !strings.HasPrefix(s, "~") {
		return nil, formulaErr(raw, "formula must start with '~'")
	}
	s = strings.TrimPrefix(s, "~")
	if s == "" {
		return nil, formulaErr(raw, "empty formula")
	}

	f := &Formula{Raw: raw}
	for chunk := range strings.SplitSeq(s, "+") {
		switch {
		case chunk == "":
			return nil, formulaErr(raw, "empty term")
		case chunk == "1":
			// Explicit intercept; nothing to add.
		case strings.HasPrefix(chunk, "(1|") && strings.HasSuffix(chunk, ")"):
			group := chunk[len("(1|") : len(chunk)-1]
			if !categoricalCovariates[group] {
				return nil, formulaErr(raw, "unknown grouping covariate %q", group)
			}
			if f.RandomGroup != "" {
				return nil, formulaErr(raw, "at most one random intercept is supported")
			}
			f.RandomGroup = group
		case strings.Contains(chunk, "*"):
			vars := strings.Split(chunk, "*")
			if len(vars) != 2 {
				return nil, formulaErr(raw, "only two-way crosses are supported in %q", chunk)
			}
			if err := checkVars(raw, vars); err != nil {
				return nil, err
			}
			f.addTerm(term{vars: vars[:1]})
			f.addTerm(term{vars: vars[1:2]})
			f.addTerm(term{vars: vars})
		case strings.Contains(chunk, ":"):
			vars := strings.Split(chunk, ":")
			if len(vars) != 2 {
				return nil, formulaErr(raw, "only two-way interactions are supported in %q", chunk)
			}
			if err := checkVars(raw, vars); err != nil {
				return nil, err
			}
			f.addTerm(term{vars: vars})
		default:
			if err := checkVars(raw, []string{chunk}); err != nil {
				return nil, err
			}
			f.addTerm(term{vars: []string{chunk}})
		}
	}
	return f, nil
}

// MustParseFormula parses a formula known at compile time and panics on
// error. For candidate-set literals and tests.
func MustParseFormula(raw string) *Formula {
	f, err := ParseFormula(raw)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Formula) addTerm(t term) {
	for _, existing := range f.Terms {
		if existing.String() == t.String() {
			return
		}
	}
	f.Terms = append(f.Terms, t)
}

// InterceptOnly reports whether the formula has no covariate terms and no
// random intercept.
func (f *Formula) InterceptOnly() bool {
	return len(f.Terms) == 0 && f.RandomGroup == ""
}

func checkVars(raw string, vars []string) error {
	for _, v := range vars {
		if !knownCovariates[v] {
			return formulaErr(raw, "unknown covariate %q", v)
		}
	}
	return nil
}

func formulaErr(raw, format string, args ...any) error {
	return errors.Newf("formula %q: "+format, append([]any{raw}, args...)...).
		Component("gdr").
		Category(errors.CategoryConfiguration).
		Build()
}

// covariateNumeric returns the numeric value of covariate name on row c.
// Only valid for numeric covariates.
func covariateNumeric(c *survey.OccasionKey, name string) float64 {
	switch name {
	case "year":
		return float64(c.Year)
	case "doy":
		return float64(c.DOY)
	}
	return 0
}

// covariateLevel returns the categorical level of covariate name on row c.
func covariateLevel(c *survey.OccasionKey, name string) string {
	switch name {
	case "habitat":
		return c.Habitat
	case "transect":
		return c.Transect
	case "point":
		return c.Point
	}
	return ""
}
