package survey

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/logging"
)

// Required columns of the survey file, by header name.
const (
	colTransect = "TransectName"
	colPoint    = "Point"
	colYear     = "Year"
	colDOY      = "DOY"
	colHabitat  = "Habitat"
	colDistance = "DistanceBin"
	colTimeBin  = "TimeBin"
	colCount    = "Count"
)

var requiredColumns = []string{
	colTransect, colPoint, colYear, colDOY, colHabitat, colDistance, colTimeBin, colCount,
}

// Loader reads survey records from a delimited file.
type Loader struct {
	// Retain filters records by year before aggregation. A nil Retain
	// keeps every year. Changing the filter changes every downstream
	// statistic, so callers thread it in from configuration explicitly.
	Retain func(year int) bool

	logger *slog.Logger
}

// NewLoader returns a Loader with the given year filter.
func NewLoader(retain func(year int) bool) *Loader {
	return &Loader{
		Retain: retain,
		logger: logging.ForService("survey-loader"),
	}
}

// LoadFile reads and filters records from the file at path.
func (l *Loader) LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("survey-loader").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	records, err := l.Load(f)
	if err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Info("survey records loaded",
			"path", path,
			"records", len(records))
	}
	return records, nil
}

// Load reads and filters records from r. The first row must be a header
// containing all required columns; extra columns are ignored.
func (l *Loader) Load(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Newf("reading survey header: %w", err).
			Category(errors.CategoryFileParsing).Build()
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			return nil, errors.Newf("survey file is missing required column %q", name).
				Category(errors.CategoryDataIntegrity).
				Context("header", strings.Join(header, ",")).
				Build()
		}
	}

	var records []Record
	var dropped int
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Newf("reading survey row %d: %w", line, err).
				Category(errors.CategoryFileParsing).Build()
		}

		rec, err := parseRow(row, idx, line)
		if err != nil {
			return nil, err
		}

		if l.Retain != nil && !l.Retain(rec.Year) {
			dropped++
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, errors.Newf("no survey records remain after the year filter").
			Category(errors.CategoryDataIntegrity).
			Context("dropped", dropped).
			Build()
	}
	if l.logger != nil && dropped > 0 {
		l.logger.Debug("records outside the sampling years dropped", "dropped", dropped)
	}
	return records, nil
}

func parseRow(row []string, idx map[string]int, line int) (Record, error) {
	field := func(name string) string {
		return strings.TrimSpace(row[idx[name]])
	}

	year, err := strconv.Atoi(field(colYear))
	if err != nil {
		return Record{}, badField(line, colYear, field(colYear))
	}
	doy, err := strconv.Atoi(field(colDOY))
	if err != nil {
		return Record{}, badField(line, colDOY, field(colDOY))
	}

	// Absent counts mean zero detections, never a missing-value marker.
	count := 0
	if raw := field(colCount); raw != "" && raw != "NA" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 0 {
			return Record{}, badField(line, colCount, raw)
		}
	}

	rec := Record{
		Transect:    field(colTransect),
		Point:       field(colPoint),
		Year:        year,
		DOY:         doy,
		Habitat:     field(colHabitat),
		DistanceBin: strings.ToLower(field(colDistance)),
		TimeBin:     field(colTimeBin),
		Count:       count,
	}

	if !slices.Contains(DistanceBins, rec.DistanceBin) {
		return Record{}, badField(line, colDistance, rec.DistanceBin)
	}
	if !slices.Contains(TimeBins, rec.TimeBin) {
		return Record{}, badField(line, colTimeBin, rec.TimeBin)
	}
	if rec.Transect == "" || rec.Point == "" || rec.Habitat == "" {
		return Record{}, errors.Newf("survey row %d has an empty identity column", line).
			Category(errors.CategoryDataIntegrity).Build()
	}
	return rec, nil
}

func badField(line int, column, value string) error {
	return errors.Newf("survey row %d has invalid %s value %q", line, column, value).
		Category(errors.CategoryDataIntegrity).
		Context("line", line).
		Context("column", column).
		Build()
}
