// Package frame assembles aggregated survey summaries and site covariates
// into the immutable unit of input to model fitting. A frame validates its
// shape once at construction; every accessor afterwards returns copies, so
// no fitting or summarization call can mutate frame contents.
package frame

import (
	"slices"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/survey"
)

// SurveyFrame holds the distance and removal count matrices, the aligned
// covariate rows, the distance-bin boundaries, the removal-period durations
// and the replication structure.
type SurveyFrame struct {
	occasions       []survey.OccasionKey
	yDistance       [][]int
	yRemoval        [][]int
	distanceBreaks  []float64
	periodDurations []float64
	unit            string
	numPrimary      int
}

// New validates and builds a SurveyFrame from an aggregated summary.
// breaks is the ascending sequence of distance-bin boundaries (length =
// distance bins + 1), durations the per-period lengths (length = removal
// periods), unit the unit of the breaks and numPrimary the number of
// primary sampling periods per year.
func New(sum *survey.Summary, breaks, durations []float64, unit string, numPrimary int) (*SurveyFrame, error) {
	n := len(sum.Occasions)
	if len(sum.Distance) != n || len(sum.Removal) != n {
		return nil, errors.Newf("covariate rows (%d) disagree with count-matrix rows (distance %d, removal %d)",
			n, len(sum.Distance), len(sum.Removal)).
			Component("frame").
			Category(errors.CategoryStructure).
			Build()
	}
	if n == 0 {
		return nil, errors.Newf("frame requires at least one survey occasion").
			Component("frame").
			Category(errors.CategoryStructure).
			Build()
	}
	if len(breaks) < 2 {
		return nil, errors.Newf("need at least two distance breaks, got %d", len(breaks)).
			Component("frame").
			Category(errors.CategoryStructure).
			Build()
	}
	for i := 1; i < len(breaks); i++ {
		if breaks[i] <= breaks[i-1] {
			return nil, errors.Newf("distance breaks must be strictly ascending, got %v", breaks).
				Component("frame").
				Category(errors.CategoryStructure).
				Build()
		}
	}
	wantDistCols := len(breaks) - 1
	wantRemCols := len(durations)
	for i := range n {
		if len(sum.Distance[i]) != wantDistCols {
			return nil, errors.Newf("distance row %d has %d columns, breaks imply %d",
				i, len(sum.Distance[i]), wantDistCols).
				Component("frame").
				Category(errors.CategoryStructure).
				Build()
		}
		if len(sum.Removal[i]) != wantRemCols {
			return nil, errors.Newf("removal row %d has %d columns, %d periods declared",
				i, len(sum.Removal[i]), wantRemCols).
				Component("frame").
				Category(errors.CategoryStructure).
				Build()
		}
	}
	for i, d := range durations {
		if d <= 0 {
			return nil, errors.Newf("period duration %d must be positive, got %v", i, d).
				Component("frame").
				Category(errors.CategoryStructure).
				Build()
		}
	}
	if numPrimary < 1 {
		return nil, errors.Newf("number of primary periods must be at least 1, got %d", numPrimary).
			Component("frame").
			Category(errors.CategoryStructure).
			Build()
	}

	return &SurveyFrame{
		occasions:       slices.Clone(sum.Occasions),
		yDistance:       cloneMatrix(sum.Distance),
		yRemoval:        cloneMatrix(sum.Removal),
		distanceBreaks:  slices.Clone(breaks),
		periodDurations: slices.Clone(durations),
		unit:            unit,
		numPrimary:      numPrimary,
	}, nil
}

func cloneMatrix(m [][]int) [][]int {
	out := make([][]int, len(m))
	for i, row := range m {
		out[i] = slices.Clone(row)
	}
	return out
}

// NumOccasions returns the number of survey occasions (rows).
func (f *SurveyFrame) NumOccasions() int { return len(f.occasions) }

// NumDistanceBins returns the number of distance bins.
func (f *SurveyFrame) NumDistanceBins() int { return len(f.distanceBreaks) - 1 }

// NumPeriods returns the number of removal periods.
func (f *SurveyFrame) NumPeriods() int { return len(f.periodDurations) }

// NumPrimary returns the number of primary sampling periods.
func (f *SurveyFrame) NumPrimary() int { return f.numPrimary }

// Unit returns the unit of the distance breaks.
func (f *SurveyFrame) Unit() string { return f.unit }

// Occasions returns a copy of the covariate rows, aligned with the count
// matrices.
func (f *SurveyFrame) Occasions() []survey.OccasionKey {
	return slices.Clone(f.occasions)
}

// DistanceCounts returns a copy of the occasions x distance-bins matrix.
func (f *SurveyFrame) DistanceCounts() [][]int { return cloneMatrix(f.yDistance) }

// RemovalCounts returns a copy of the occasions x removal-periods matrix.
func (f *SurveyFrame) RemovalCounts() [][]int { return cloneMatrix(f.yRemoval) }

// DistanceBreaks returns a copy of the bin boundary sequence.
func (f *SurveyFrame) DistanceBreaks() []float64 { return slices.Clone(f.distanceBreaks) }

// PeriodDurations returns a copy of the removal-period durations.
func (f *SurveyFrame) PeriodDurations() []float64 { return slices.Clone(f.periodDurations) }

// MaxDistance returns the truncation distance (the last break).
func (f *SurveyFrame) MaxDistance() float64 { return f.distanceBreaks[len(f.distanceBreaks)-1] }

// TotalDuration returns the summed removal-period length.
func (f *SurveyFrame) TotalDuration() float64 {
	var total float64
	for _, d := range f.periodDurations {
		total += d
	}
	return total
}

// TotalCounts returns the per-occasion detection totals.
func (f *SurveyFrame) TotalCounts() []int {
	totals := make([]int, len(f.occasions))
	for i, row := range f.yDistance {
		for _, c := range row {
			totals[i] += c
		}
	}
	return totals
}

// WithCounts returns a new frame sharing this frame's covariates and design
// but carrying the given count matrices. Used by simulation to rebuild a
// frame around resimulated data; the receiver is not modified.
func (f *SurveyFrame) WithCounts(yDistance, yRemoval [][]int) (*SurveyFrame, error) {
	sum := &survey.Summary{
		Occasions: slices.Clone(f.occasions),
		Distance:  yDistance,
		Removal:   yRemoval,
	}
	return New(sum, f.distanceBreaks, f.periodDurations, f.unit, f.numPrimary)
}
