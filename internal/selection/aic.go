// Package selection ranks fitted candidate models by information
// criterion. Given identical inputs the table is identical: sorting is
// stable, ties keep insertion order, and no randomness is involved.
package selection

import (
	"math"
	"sort"

	"github.com/pointcount/avifauna/internal/errors"
)

// Candidate is what the ranker needs from a fitted model. *gdr.FittedModel
// satisfies it.
type Candidate interface {
	Name() string
	LogLikelihood() float64
	NumParams() int
}

// Row is one line of the model-selection table.
type Row struct {
	Name   string
	K      int     // parameter count
	AIC    float64 // -2*loglik + 2*K
	Delta  float64 // AIC difference to the best model
	Weight float64 // Akaike weight, sums to 1 across the table
	LogLik float64
}

// Table is a model-selection table ordered by ascending AIC.
type Table struct {
	Rows []Row
}

// Best returns the top-ranked row.
func (t *Table) Best() Row { return t.Rows[0] }

// Row looks up a row by model name.
func (t *Table) Row(name string) (Row, error) {
	for _, r := range t.Rows {
		if r.Name == name {
			return r, nil
		}
	}
	return Row{}, errors.Newf("no model named %q in selection table", name).
		Component("selection").
		Category(errors.CategoryNotFound).
		Build()
}

// Rank builds the selection table for a set of fitted models. Models must
// share a response structure for their criteria to be comparable; the
// caller guarantees that by fitting them to the same frame.
func Rank(models []Candidate) (*Table, error) {
	if len(models) == 0 {
		return nil, errors.Newf("cannot rank an empty model set").
			Component("selection").
			Category(errors.CategoryConfiguration).
			Build()
	}

	rows := make([]Row, len(models))
	for i, m := range models {
		rows[i] = Row{
			Name:   m.Name(),
			K:      m.NumParams(),
			AIC:    -2*m.LogLikelihood() + 2*float64(m.NumParams()),
			LogLik: m.LogLikelihood(),
		}
	}

	// Stable sort keeps insertion order on ties.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].AIC < rows[j].AIC })

	best := rows[0].AIC
	var total float64
	for i := range rows {
		rows[i].Delta = rows[i].AIC - best
		total += math.Exp(-rows[i].Delta / 2)
	}
	for i := range rows {
		rows[i].Weight = math.Exp(-rows[i].Delta/2) / total
	}
	return &Table{Rows: rows}, nil
}
