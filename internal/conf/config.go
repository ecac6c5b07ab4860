// config.go: settings struct and functions to load and validate the
// pipeline configuration.
package conf

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/pointcount/avifauna/internal/errors"
)

// YearRange is an inclusive range of survey years.
type YearRange struct {
	From int
	To   int
}

// Contains reports whether year falls inside the range.
func (r YearRange) Contains(year int) bool {
	return year >= r.From && year <= r.To
}

// LogSettings contains settings for the optional file log.
type LogSettings struct {
	Enabled bool   // true to write a JSON log file in addition to stdout/stderr
	Path    string // path to the log file
}

// MainSettings contains top-level application settings.
type MainSettings struct {
	Name string      // application name used in report headers
	Log  LogSettings // file log settings
}

// SurveySettings describes the input dataset and its sampling design.
type SurveySettings struct {
	InputPath      string      // path to the delimited survey-records file
	YearRanges     []YearRange // only records inside these ranges are analyzed
	DistanceBreaks []float64   // ascending distance-bin boundaries, meters
	RemovalPeriods []float64   // per-period durations, minutes
	DistanceUnit   string      // unit of the distance breaks, e.g. "m"
	NumPrimary     int         // primary sampling periods per year (1: no within-year replication)
}

// AnalysisSettings controls model fitting and summarization.
type AnalysisSettings struct {
	Seed            int64   // base RNG seed threaded into every stochastic call
	ConfidenceLevel float64 // interval coverage, e.g. 0.95
	PosteriorDraws  int     // draws for latent-abundance summaries
	RandomIntercept string  // grouping covariate for the abundance random intercept, "" to disable
}

// SimulationSettings controls the power analysis and bootstrap branches.
type SimulationSettings struct {
	PowerReplicates     int     // simulated datasets per power estimate
	BootstrapReplicates int     // parametric bootstrap replicates for goodness of fit
	Workers             int     // concurrent replicate fits, 0 for GOMAXPROCS
	HabitatEffect       float64 // log-scale habitat effect used when simulating
	TrendEffect         float64 // log-scale per-year trend used when simulating
}

// ReportSettings controls rendered artifacts.
type ReportSettings struct {
	OutputDir    string // directory receiving report and figure
	ReportFile   string // HTML report file name
	FigureFile   string // PNG figure file name
	ExpectedPath string // YAML manifest of recorded expected statistics
	FigureWidth  int    // figure width in pixels
	FigureHeight int    // figure height in pixels
}

// SQLiteSettings contains the run-archive database settings.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// OutputSettings groups persistence targets.
type OutputSettings struct {
	SQLite SQLiteSettings
}

// CitationSettings configures the citation-count lookup.
type CitationSettings struct {
	Enabled  bool
	DOI      string // DOI of the published paper
	Endpoint string // Crossref-compatible works endpoint
	TTL      int    // cache TTL in minutes
}

// Settings is the root configuration structure.
type Settings struct {
	Debug bool

	Main       MainSettings
	Survey     SurveySettings
	Analysis   AnalysisSettings
	Simulation SimulationSettings
	Report     ReportSettings
	Output     OutputSettings
	Citation   CitationSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings value.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("avifauna")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/avifauna")

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults cover a full run.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// Setting returns the current settings instance, loading it if necessary.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	settings, err := Load()
	if err != nil {
		return nil
	}
	return settings
}

// ValidateSettings checks cross-field consistency of the configuration.
func ValidateSettings(s *Settings) error {
	if s.Survey.InputPath == "" {
		return errors.Newf("survey.inputpath must be set").Category(errors.CategoryConfiguration).Build()
	}
	if len(s.Survey.DistanceBreaks) < 2 {
		return errors.Newf("survey.distancebreaks needs at least two boundaries, got %d", len(s.Survey.DistanceBreaks)).
			Category(errors.CategoryConfiguration).Build()
	}
	for i := 1; i < len(s.Survey.DistanceBreaks); i++ {
		if s.Survey.DistanceBreaks[i] <= s.Survey.DistanceBreaks[i-1] {
			return errors.Newf("survey.distancebreaks must be strictly ascending at index %d", i).
				Category(errors.CategoryConfiguration).Build()
		}
	}
	if len(s.Survey.RemovalPeriods) == 0 {
		return errors.Newf("survey.removalperiods must not be empty").Category(errors.CategoryConfiguration).Build()
	}
	for i, d := range s.Survey.RemovalPeriods {
		if d <= 0 {
			return errors.Newf("survey.removalperiods[%d] must be positive, got %v", i, d).
				Category(errors.CategoryConfiguration).Build()
		}
	}
	if s.Survey.NumPrimary < 1 {
		return errors.Newf("survey.numprimary must be at least 1, got %d", s.Survey.NumPrimary).
			Category(errors.CategoryConfiguration).Build()
	}
	for i, r := range s.Survey.YearRanges {
		if r.To < r.From {
			return errors.Newf("survey.yearranges[%d] is inverted: %d-%d", i, r.From, r.To).
				Category(errors.CategoryConfiguration).Build()
		}
		if i > 0 && r.From <= s.Survey.YearRanges[i-1].To {
			return errors.Newf("survey.yearranges must be ascending and disjoint at index %d", i).
				Category(errors.CategoryConfiguration).Build()
		}
	}
	if s.Analysis.ConfidenceLevel <= 0 || s.Analysis.ConfidenceLevel >= 1 {
		return errors.Newf("analysis.confidencelevel must be in (0, 1), got %v", s.Analysis.ConfidenceLevel).
			Category(errors.CategoryConfiguration).Build()
	}
	if s.Analysis.PosteriorDraws < 1 {
		return errors.Newf("analysis.posteriordraws must be at least 1, got %d", s.Analysis.PosteriorDraws).
			Category(errors.CategoryConfiguration).Build()
	}
	if s.Simulation.PowerReplicates < 1 || s.Simulation.BootstrapReplicates < 1 {
		return errors.Newf("simulation replicate counts must be at least 1").
			Category(errors.CategoryConfiguration).Build()
	}
	return nil
}

// YearRetained reports whether a record year survives the configured filter.
func (s *SurveySettings) YearRetained(year int) bool {
	for _, r := range s.YearRanges {
		if r.Contains(year) {
			return true
		}
	}
	return false
}
