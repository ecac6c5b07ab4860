// Package validate implements the data-validation subcommand.
package validate

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pointcount/avifauna/internal/conf"
	"github.com/pointcount/avifauna/internal/frame"
	"github.com/pointcount/avifauna/internal/survey"
)

// Command creates the validate command: load, filter and aggregate the
// survey records and report the dataset shape without fitting anything.
// The aggregation cross-check makes this a cheap integrity gate.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the survey records without fitting models",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := survey.NewLoader(settings.Survey.YearRetained)
			records, err := loader.LoadFile(settings.Survey.InputPath)
			if err != nil {
				return err
			}

			sum, err := survey.Aggregate(records)
			if err != nil {
				return err
			}

			f, err := frame.New(sum,
				settings.Survey.DistanceBreaks,
				settings.Survey.RemovalPeriods,
				settings.Survey.DistanceUnit,
				settings.Survey.NumPrimary)
			if err != nil {
				return err
			}

			printSummary(cmd, settings, f, len(records))
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, settings *conf.Settings, f *frame.SurveyFrame, records int) {
	transects := make(map[string]bool)
	years := make(map[int]bool)
	habitats := make(map[string]int)
	var birds int
	totals := f.TotalCounts()
	for i, c := range f.Occasions() {
		transects[c.Transect] = true
		years[c.Year] = true
		habitats[c.Habitat]++
		birds += totals[i]
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "input:      %s\n", settings.Survey.InputPath)
	fmt.Fprintf(w, "records:    %d\n", records)
	fmt.Fprintf(w, "occasions:  %d\n", f.NumOccasions())
	fmt.Fprintf(w, "transects:  %d\n", len(transects))
	fmt.Fprintf(w, "years:      %d\n", len(years))
	fmt.Fprintf(w, "birds:      %d\n", birds)
	fmt.Fprintf(w, "design:     %d distance bins to %.0f %s, %d removal periods over %.0f min\n",
		f.NumDistanceBins(), f.MaxDistance(), f.Unit(),
		f.NumPeriods(), f.TotalDuration())

	names := make([]string, 0, len(habitats))
	for h := range habitats {
		names = append(names, h)
	}
	sort.Strings(names)
	for _, h := range names {
		fmt.Fprintf(w, "habitat %-10s %d occasions\n", h+":", habitats[h])
	}
}
