package analysis

import (
	"context"

	"github.com/pointcount/avifauna/internal/conf"
	"github.com/pointcount/avifauna/internal/gdr"
	"github.com/pointcount/avifauna/internal/logging"
	"github.com/pointcount/avifauna/internal/simulation"
)

// PowerAnalysis runs the simulation branch: synthetic surveys under the
// configured habitat and trend effects, refitted with the additive model,
// scored by Wald tests on the two design effects.
func PowerAnalysis(ctx context.Context, settings *conf.Settings, fitter gdr.Fitter) ([]simulation.PowerResult, error) {
	logger := logging.ForService("analysis")

	sc := simulation.DefaultScenario(
		settings.Simulation.HabitatEffect,
		settings.Simulation.TrendEffect)
	sc.DistanceBreaks = settings.Survey.DistanceBreaks
	sc.RemovalPeriods = settings.Survey.RemovalPeriods
	if settings.Analysis.RandomIntercept == "" {
		sc.GroupSD = 0
	}

	formula := "~habitat+year"
	if settings.Analysis.RandomIntercept != "" {
		formula += "+(1|" + settings.Analysis.RandomIntercept + ")"
	}
	spec, err := gdr.NewSpec("habitat+year", formula, "~1", "~1")
	if err != nil {
		return nil, err
	}

	targets := []string{"habitat" + sc.Habitats[1], "year"}
	logger.Info("power analysis starting",
		"replicates", settings.Simulation.PowerReplicates,
		"habitat_effect", sc.HabitatEffect,
		"trend_effect", sc.TrendEffect,
		"targets", targets)

	return simulation.Power(ctx, sc, fitter, simulation.PowerOptions{
		Replicates: settings.Simulation.PowerReplicates,
		Workers:    settings.Simulation.Workers,
		Seed:       settings.Analysis.Seed,
		Alpha:      0.05,
		Spec:       spec,
		Targets:    targets,
	})
}
