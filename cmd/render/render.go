// Package render implements the re-render subcommand.
package render

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pointcount/avifauna/internal/conf"
	"github.com/pointcount/avifauna/internal/datastore"
	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/logging"
	"github.com/pointcount/avifauna/internal/report"
	"github.com/pointcount/avifauna/internal/selection"
	"github.com/pointcount/avifauna/internal/simulation"
)

var errNoRuns = errors.Newf("the run archive is empty, nothing to render").
	Component("render").
	Category(errors.CategoryNotFound).
	Build()

// Command creates the render command: rebuild the report and figure from
// an archived run, without refitting anything.
func Command(settings *conf.Settings) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Re-render the report from an archived run",
		Long:  "Load a past run from the SQLite archive and rebuild its HTML report and trend figure. Defaults to the most recent run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Open(settings.Output.SQLite.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := loadRun(store, runID)
			if err != nil {
				return err
			}
			return renderArchived(settings, run)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "UUID of the archived run, empty for the most recent")
	return cmd
}

func loadRun(store *datastore.Store, runID string) (*datastore.Run, error) {
	if runID != "" {
		return store.GetRun(runID)
	}
	runs, err := store.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errNoRuns
	}
	return store.GetRun(runs[0].RunID)
}

func renderArchived(settings *conf.Settings, run *datastore.Run) error {
	if err := os.MkdirAll(settings.Report.OutputDir, 0o755); err != nil {
		return err
	}

	series := trendSeries(run.Predictions)
	if len(series) > 0 {
		figurePath := filepath.Join(settings.Report.OutputDir, settings.Report.FigureFile)
		if err := report.SaveFigure(figurePath, series,
			settings.Report.FigureWidth, settings.Report.FigureHeight); err != nil {
			return err
		}
	}

	rows := make([]selection.Row, len(run.Models))
	for i, m := range run.Models {
		rows[i] = selection.Row{
			Name: m.Name, K: m.K, AIC: m.AIC,
			Delta: m.Delta, Weight: m.Weight, LogLik: m.LogLik,
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].AIC < rows[j].AIC })

	power := make([]simulation.PowerResult, len(run.PowerRows))
	for i, p := range run.PowerRows {
		power[i] = simulation.PowerResult{
			Coefficient:  p.Coefficient,
			Power:        p.Power,
			Replicates:   p.Replicates,
			Failed:       p.Failed,
			MeanEstimate: p.MeanEstimate,
		}
	}

	data := &report.Data{
		GeneratedAt: time.Now(),
		Seed:        run.Seed,
		Dataset: report.DatasetInfo{
			Source:     run.Source,
			Occasions:  run.Occasions,
			TotalBirds: run.TotalBirds,
		},
		Selection:  rows,
		BestModel:  run.BestModel,
		Trend:      series,
		Power:      power,
		FigureFile: settings.Report.FigureFile,
	}

	path, err := report.RenderFile(settings.Report.OutputDir, settings.Report.ReportFile, data)
	if err != nil {
		return err
	}
	logging.Info("archived run re-rendered", "run_id", run.RunID, "path", path)
	return nil
}

// trendSeries regroups archived prediction rows into per-habitat series,
// habitats in stored order, years ascending.
func trendSeries(preds []datastore.PredictionRow) []report.HabitatSeries {
	var order []string
	byHabitat := make(map[string][]report.TrendPoint)
	for _, p := range preds {
		if _, ok := byHabitat[p.Habitat]; !ok {
			order = append(order, p.Habitat)
		}
		byHabitat[p.Habitat] = append(byHabitat[p.Habitat], report.TrendPoint{
			Year:     p.Year,
			Estimate: p.Estimate,
			Lower:    p.Lower,
			Upper:    p.Upper,
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
