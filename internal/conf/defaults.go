// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "avifauna")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "avifauna.log")

	viper.SetDefault("survey.inputpath", "data/survey_records.csv")
	// Two complete-sampling windows; the 2015 season was not surveyed.
	viper.SetDefault("survey.yearranges", []map[string]int{
		{"from": 2008, "to": 2014},
		{"from": 2016, "to": 2023},
	})
	viper.SetDefault("survey.distancebreaks", []float64{0, 50, 100})
	viper.SetDefault("survey.removalperiods", []float64{3, 2, 5})
	viper.SetDefault("survey.distanceunit", "m")
	viper.SetDefault("survey.numprimary", 1)

	viper.SetDefault("analysis.seed", 20240817)
	viper.SetDefault("analysis.confidencelevel", 0.95)
	viper.SetDefault("analysis.posteriordraws", 1000)
	viper.SetDefault("analysis.randomintercept", "transect")

	viper.SetDefault("simulation.powerreplicates", 100)
	viper.SetDefault("simulation.bootstrapreplicates", 100)
	viper.SetDefault("simulation.workers", 0)
	viper.SetDefault("simulation.habitateffect", -0.35)
	viper.SetDefault("simulation.trendeffect", -0.04)

	viper.SetDefault("report.outputdir", "output")
	viper.SetDefault("report.reportfile", "report.html")
	viper.SetDefault("report.figurefile", "abundance_by_habitat.png")
	viper.SetDefault("report.expectedpath", "data/expected.yaml")
	viper.SetDefault("report.figurewidth", 1800)
	viper.SetDefault("report.figureheight", 1200)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "output/runs.db")

	viper.SetDefault("citation.enabled", false)
	viper.SetDefault("citation.doi", "")
	viper.SetDefault("citation.endpoint", "https://api.crossref.org/works")
	viper.SetDefault("citation.ttl", 60)
}
