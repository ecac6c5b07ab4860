package analysis

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pointcount/avifauna/internal/citation"
	"github.com/pointcount/avifauna/internal/conf"
	"github.com/pointcount/avifauna/internal/datastore"
	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/logging"
	"github.com/pointcount/avifauna/internal/report"
	"github.com/pointcount/avifauna/internal/simulation"
)

// RenderArtifacts writes the figure and HTML report, verifies the rerun
// against the recorded statistics, and archives the run when the archive
// is enabled. The returned error is the verification outcome: artifacts
// are written either way, so a failing rerun still leaves evidence.
func RenderArtifacts(ctx context.Context, settings *conf.Settings, res *Result, power []simulation.PowerResult) error {
	logger := logging.ForService("analysis")

	if err := os.MkdirAll(settings.Report.OutputDir, 0o755); err != nil {
		return err
	}

	series := trendSeries(res.Trend)
	figurePath := filepath.Join(settings.Report.OutputDir, settings.Report.FigureFile)
	if err := report.SaveFigure(figurePath, series,
		settings.Report.FigureWidth, settings.Report.FigureHeight); err != nil {
		return err
	}
	logger.Info("figure rendered", "path", figurePath)

	checks, verifyErr := verifyExpected(settings, res, power, logger)

	data := &report.Data{
		GeneratedAt: time.Now(),
		Seed:        settings.Analysis.Seed,
		Dataset:     datasetInfo(settings, res),
		Selection:   res.Table.Rows,
		BestModel:   res.Table.Best().Name,
		GOF:         res.GOF,
		Trend:       series,
		Latent:      latentRows(res),
		Power:       power,
		Checks:      checks,
		Citation:    fetchCitation(ctx, settings, logger),
		FigureFile:  settings.Report.FigureFile,
	}
	if _, err := report.RenderFile(settings.Report.OutputDir, settings.Report.ReportFile, data); err != nil {
		return err
	}

	if settings.Output.SQLite.Enabled {
		if err := archiveRun(settings, res, power); err != nil {
			// Archiving is best-effort; the rendered artifacts are the
			// deliverable.
			logger.Warn("run archive failed", "error", err)
		}
	}

	return verifyErr
}

// trendSeries regroups the flat habitat-year cells into per-habitat
// series for the figure and the report tables.
func trendSeries(trend []TrendCell) []report.HabitatSeries {
	order := []string{}
	byHabitat := make(map[string][]report.TrendPoint)
	for _, c := range trend {
		if _, ok := byHabitat[c.Habitat]; !ok {
			order = append(order, c.Habitat)
		}
		byHabitat[c.Habitat] = append(byHabitat[c.Habitat], report.TrendPoint{
			Year:     c.Year,
			Estimate: c.Estimate,
			Lower:    c.Lower,
			Upper:    c.Upper,
		})
	}

	series := make([]report.HabitatSeries, len(order))
	for i, h := range order {
		pts := byHabitat[h]
		sort.Slice(pts, func(a, b int) bool { return pts[a].Year < pts[b].Year })
		series[i] = report.HabitatSeries{Habitat: h, Points: pts}
	}
	return series
}

func latentRows(res *Result) []report.LatentRow {
	keys := make([]string, 0, len(res.Latent))
	for k := range res.Latent {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]report.LatentRow, len(keys))
	for i, k := range keys {
		rows[i] = report.LatentRow{Habitat: k, Summary: res.Latent[k]}
	}
	return rows
}

func datasetInfo(settings *conf.Settings, res *Result) report.DatasetInfo {
	transects := make(map[string]bool)
	years := make(map[int]bool)
	for _, c := range res.Frame.Occasions() {
		transects[c.Transect] = true
		years[c.Year] = true
	}
	return report.DatasetInfo{
		Source:     settings.Survey.InputPath,
		Occasions:  res.Frame.NumOccasions(),
		Transects:  len(transects),
		Years:      len(years),
		TotalBirds: sumCounts(res.Frame.TotalCounts()),
	}
}

// verifyExpected checks the rerun's statistics against the recorded
// manifest. A missing manifest skips verification with a warning rather
// than failing the run.
func verifyExpected(settings *conf.Settings, res *Result, power []simulation.PowerResult, logger *slog.Logger) ([]report.CheckResult, error) {
	if settings.Report.ExpectedPath == "" {
		return nil, nil
	}
	manifest, err := report.LoadManifest(settings.Report.ExpectedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("no expected-statistics manifest, skipping verification",
				"path", settings.Report.ExpectedPath)
			return nil, nil
		}
		return nil, err
	}

	stats := make(map[string]float64, len(res.Statistics))
	for k, v := range res.Statistics {
		stats[k] = v
	}
	for _, p := range power {
		stats["power_"+statKey(p.Coefficient)] = p.Power
	}

	checks, verifyErr := manifest.Verify(stats)
	if unknown := manifest.UnknownStatistics(stats); len(unknown) > 0 {
		logger.Info("statistics without a recorded expectation", "names", unknown)
	}
	return checks, verifyErr
}

func fetchCitation(ctx context.Context, settings *conf.Settings, logger *slog.Logger) *report.CitationInfo {
	if !settings.Citation.Enabled || settings.Citation.DOI == "" {
		return nil
	}
	client := citation.New(settings.Citation.Endpoint,
		time.Duration(settings.Citation.TTL)*time.Minute)
	count, err := client.ReferencedByCount(ctx, settings.Citation.DOI)
	if err != nil {
		// Lookup failure only drops the citation line from the report.
		logger.Warn("citation lookup failed", "doi", settings.Citation.DOI, "error", err)
		return nil
	}
	return &report.CitationInfo{DOI: settings.Citation.DOI, Count: count}
}

func archiveRun(settings *conf.Settings, res *Result, power []simulation.PowerResult) error {
	store, err := datastore.Open(settings.Output.SQLite.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	run := datastore.NewRun(settings.Analysis.Seed, settings.Survey.InputPath)
	info := datasetInfo(settings, res)
	run.Occasions = info.Occasions
	run.TotalBirds = info.TotalBirds
	run.BestModel = res.Table.Best().Name
	if res.GOF != nil {
		run.GOFPValue = res.GOF.PValue
	}
	for _, row := range res.Table.Rows {
		run.Models = append(run.Models, datastore.ModelResult{
			Name:   row.Name,
			K:      row.K,
			LogLik: row.LogLik,
			AIC:    row.AIC,
			Delta:  row.Delta,
			Weight: row.Weight,
		})
	}
	for _, c := range res.Trend {
		run.Predictions = append(run.Predictions, datastore.PredictionRow{
			Habitat:  c.Habitat,
			Year:     c.Year,
			Estimate: c.Estimate,
			Lower:    c.Lower,
			Upper:    c.Upper,
		})
	}
	for _, p := range power {
		run.PowerRows = append(run.PowerRows, datastore.PowerRow{
			Coefficient:  p.Coefficient,
			Power:        p.Power,
			Replicates:   p.Replicates,
			Failed:       p.Failed,
			MeanEstimate: p.MeanEstimate,
		})
	}
	return store.SaveRun(run)
}
