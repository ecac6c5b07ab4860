// Package run implements the main analysis subcommand.
package run

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pointcount/avifauna/internal/analysis"
	"github.com/pointcount/avifauna/internal/conf"
	"github.com/pointcount/avifauna/internal/gdr"
	"github.com/pointcount/avifauna/internal/logging"
	"github.com/pointcount/avifauna/internal/simulation"
)

// Command creates the run command: the full observational analysis from
// raw records to rendered report.
func Command(settings *conf.Settings) *cobra.Command {
	var skipPower bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full abundance analysis",
		Long:  "Load the survey records, fit and rank the candidate models, summarize abundance, run the power analysis, verify the recorded statistics and render the report and figure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fitter := gdr.NewMLFitter()

			res, err := analysis.Run(ctx, settings, fitter)
			if err != nil {
				return err
			}

			var powerResults []simulation.PowerResult
			if !skipPower {
				powerResults, err = analysis.PowerAnalysis(ctx, settings, fitter)
				if err != nil {
					return err
				}
			}

			if err := analysis.RenderArtifacts(ctx, settings, res, powerResults); err != nil {
				return err
			}

			logging.Info("run complete",
				"best_model", res.Table.Best().Name,
				"output", settings.Report.OutputDir)
			return nil
		},
	}

	setupFlags(cmd, settings, &skipPower)
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings, skipPower *bool) {
	cmd.Flags().BoolVar(skipPower, "skip-power", false, "Skip the power analysis and its recorded-statistic checks")
	cmd.Flags().IntVar(&settings.Simulation.BootstrapReplicates, "bootstrap", viper.GetInt("simulation.bootstrapreplicates"), "Parametric bootstrap replicates for the goodness-of-fit test")
	cmd.Flags().IntVar(&settings.Analysis.PosteriorDraws, "draws", viper.GetInt("analysis.posteriordraws"), "Posterior draws for latent-abundance summaries")
	cmd.Flags().StringVar(&settings.Report.ExpectedPath, "expected", viper.GetString("report.expectedpath"), "Expected-statistics manifest, empty to skip verification")
}
