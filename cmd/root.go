// Package cmd assembles the command-line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pointcount/avifauna/cmd/power"
	"github.com/pointcount/avifauna/cmd/render"
	"github.com/pointcount/avifauna/cmd/run"
	"github.com/pointcount/avifauna/cmd/validate"
	"github.com/pointcount/avifauna/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "avifauna",
		Short: "Point-count abundance analysis CLI",
		Long:  "Reproduces the distance-removal abundance analysis of the point-count survey data: model fitting, selection, prediction, power analysis and report rendering.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		run.Command(settings),
		power.Command(settings),
		render.Command(settings),
		validate.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines the global flags and binds them into viper so the
// command line takes precedence over the config file.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.Survey.InputPath, "input", "i", viper.GetString("survey.inputpath"), "Path to the survey records file")
	rootCmd.PersistentFlags().StringVarP(&settings.Report.OutputDir, "output", "o", viper.GetString("report.outputdir"), "Directory receiving rendered artifacts")
	rootCmd.PersistentFlags().Int64Var(&settings.Analysis.Seed, "seed", viper.GetInt64("analysis.seed"), "Base RNG seed for every stochastic step")
	rootCmd.PersistentFlags().IntVarP(&settings.Simulation.Workers, "workers", "j", viper.GetInt("simulation.workers"), "Concurrent model fits, 0 for all CPUs")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
