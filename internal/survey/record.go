// Package survey loads point-count survey records and aggregates them into
// the distance-binned and removal-binned summaries the abundance models
// consume. Records are read once and immutable afterwards; aggregation is a
// pure transform.
package survey

import "fmt"

// Canonical bin labels carried by the input file.
var (
	// DistanceBins in increasing distance order.
	DistanceBins = []string{"near", "far"}
	// TimeBins labeled by cumulative minutes at the end of each removal
	// period (periods of 3, 2 and 5 minutes).
	TimeBins = []string{"3", "5", "10"}
)

// Record is one row of the survey file: detections of one species at one
// point visit, within one distance-bin/time-bin cell. A zero count means
// the cell was surveyed and nothing was detected there.
type Record struct {
	Transect    string
	Point       string
	Year        int
	DOY         int
	Habitat     string
	DistanceBin string
	TimeBin     string
	Count       int
}

// OccasionKey identifies a survey occasion: one visit to one point in one
// year. Habitat is a site-level covariate but rides along on the key so the
// aggregated tables carry it per-occasion.
type OccasionKey struct {
	Transect string
	Point    string
	Year     int
	DOY      int
	Habitat  string
}

func (k OccasionKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%d", k.Transect, k.Point, k.Year, k.DOY)
}

func (r *Record) occasion() OccasionKey {
	return OccasionKey{
		Transect: r.Transect,
		Point:    r.Point,
		Year:     r.Year,
		DOY:      r.DOY,
		Habitat:  r.Habitat,
	}
}
