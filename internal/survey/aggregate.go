package survey

import (
	"slices"

	"github.com/pointcount/avifauna/internal/errors"
)

// Summary holds the two wide tables produced from raw records: per-occasion
// counts by distance bin and by removal period. Row i of each matrix and
// Occasions[i] refer to the same survey occasion.
type Summary struct {
	Occasions []OccasionKey // order of first appearance in the input
	Distance  [][]int       // occasions x distance bins
	Removal   [][]int       // occasions x removal periods
}

// NumOccasions returns the number of distinct survey occasions.
func (s *Summary) NumOccasions() int { return len(s.Occasions) }

// Totals returns the per-occasion total count. Distance and removal totals
// are identical by construction (Aggregate fails otherwise).
func (s *Summary) Totals() []int {
	totals := make([]int, len(s.Occasions))
	for i, row := range s.Distance {
		for _, c := range row {
			totals[i] += c
		}
	}
	return totals
}

// Aggregate pivots raw records into distance and removal summaries. Missing
// bin combinations are zero-filled. After pivoting, the per-occasion totals
// of the two tables are cross-checked; a mismatch means the same detections
// were binned inconsistently upstream and aborts the run.
func Aggregate(records []Record) (*Summary, error) {
	rowOf := make(map[OccasionKey]int)
	s := &Summary{}

	for i := range records {
		rec := &records[i]
		key := rec.occasion()
		row, ok := rowOf[key]
		if !ok {
			row = len(s.Occasions)
			rowOf[key] = row
			s.Occasions = append(s.Occasions, key)
			s.Distance = append(s.Distance, make([]int, len(DistanceBins)))
			s.Removal = append(s.Removal, make([]int, len(TimeBins)))
		}

		// Each record carries one distance bin and one time bin, so the
		// same count lands once in each table.
		s.Distance[row][slices.Index(DistanceBins, rec.DistanceBin)] += rec.Count
		s.Removal[row][slices.Index(TimeBins, rec.TimeBin)] += rec.Count
	}

	if err := s.crossCheck(); err != nil {
		return nil, err
	}
	return s, nil
}

// crossCheck verifies the cross-aggregation invariant: for every occasion,
// the distance-bin counts and removal-period counts sum to the same total.
func (s *Summary) crossCheck() error {
	for i, key := range s.Occasions {
		var dist, rem int
		for _, c := range s.Distance[i] {
			dist += c
		}
		for _, c := range s.Removal[i] {
			rem += c
		}
		if dist != rem {
			return errors.Newf("occasion %s: distance total %d disagrees with removal total %d", key, dist, rem).
				Component("aggregator").
				Category(errors.CategoryDataIntegrity).
				Context("occasion", key.String()).
				Context("distance_total", dist).
				Context("removal_total", rem).
				Build()
		}
	}
	return nil
}
