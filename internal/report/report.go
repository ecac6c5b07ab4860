// Package report renders the analysis artifacts: the HTML summary report,
// the abundance trend figure, and the expected-statistics verification
// against the recorded manifest.
package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/logging"
	"github.com/pointcount/avifauna/internal/predict"
	"github.com/pointcount/avifauna/internal/selection"
	"github.com/pointcount/avifauna/internal/simulation"
)

//go:embed templates/report.html
var templatesFS embed.FS

// DatasetInfo summarizes the loaded survey data.
type DatasetInfo struct {
	Source     string
	Occasions  int
	Transects  int
	Years      int
	TotalBirds int
}

// LatentRow is one habitat's latent-abundance summary, ordered for the
// report table.
type LatentRow struct {
	Habitat string
	Summary predict.LatentSummary
}

// CitationInfo carries the citation count of the published paper, when
// the lookup is enabled and succeeded.
type CitationInfo struct {
	DOI   string
	Count int
}

// Data is everything the report template consumes.
type Data struct {
	GeneratedAt time.Time
	Seed        int64
	Dataset     DatasetInfo
	Selection   []selection.Row
	BestModel   string
	GOF         *simulation.GOFResult
	Trend       []HabitatSeries
	Latent      []LatentRow
	Power       []simulation.PowerResult
	Checks      []CheckResult
	Citation    *CitationInfo
	FigureFile  string
}

var reportTemplate = template.Must(template.New("report.html").
	Funcs(template.FuncMap{
		"f2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"f3": func(v float64) string { return fmt.Sprintf("%.3f", v) },
		"g4": FormatValue,
	}).
	ParseFS(templatesFS, "templates/report.html"))

// Render writes the HTML report to w.
func Render(w io.Writer, data *Data) error {
	if err := reportTemplate.Execute(w, data); err != nil {
		return errors.New(err).
			Component("report").
			Category(errors.CategoryGeneric).
			Build()
	}
	return nil
}

// RenderFile writes the HTML report to dir/name, creating dir if needed.
func RenderFile(dir, name string, data *Data) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("report").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).
			Component("report").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	if err := Render(f, data); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.New(err).
			Component("report").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	logging.ForService("report").Info("report rendered", "path", path)
	return path, nil
}
