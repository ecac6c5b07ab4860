package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/errors"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Survey.InputPath = "data/survey_records.csv"
	s.Survey.YearRanges = []YearRange{{From: 2008, To: 2014}, {From: 2016, To: 2023}}
	s.Survey.DistanceBreaks = []float64{0, 50, 100}
	s.Survey.RemovalPeriods = []float64{3, 2, 5}
	s.Survey.NumPrimary = 1
	s.Analysis.ConfidenceLevel = 0.95
	s.Analysis.PosteriorDraws = 1000
	s.Simulation.PowerReplicates = 100
	s.Simulation.BootstrapReplicates = 100
	return s
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(s *Settings) {}, false},
		{"missing input path", func(s *Settings) { s.Survey.InputPath = "" }, true},
		{"single distance break", func(s *Settings) { s.Survey.DistanceBreaks = []float64{0} }, true},
		{"non-ascending breaks", func(s *Settings) { s.Survey.DistanceBreaks = []float64{0, 100, 50} }, true},
		{"no removal periods", func(s *Settings) { s.Survey.RemovalPeriods = nil }, true},
		{"negative period", func(s *Settings) { s.Survey.RemovalPeriods = []float64{3, -2, 5} }, true},
		{"zero primaries", func(s *Settings) { s.Survey.NumPrimary = 0 }, true},
		{"inverted year range", func(s *Settings) { s.Survey.YearRanges[1] = YearRange{From: 2023, To: 2016} }, true},
		{"overlapping year ranges", func(s *Settings) { s.Survey.YearRanges[1] = YearRange{From: 2012, To: 2023} }, true},
		{"confidence out of range", func(s *Settings) { s.Analysis.ConfidenceLevel = 1.0 }, true},
		{"zero posterior draws", func(s *Settings) { s.Analysis.PosteriorDraws = 0 }, true},
		{"zero power replicates", func(s *Settings) { s.Simulation.PowerReplicates = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration),
					"validation failures must carry the configuration category")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestYearRetained(t *testing.T) {
	s := validSettings()
	assert.True(t, s.Survey.YearRetained(2008))
	assert.True(t, s.Survey.YearRetained(2014))
	assert.False(t, s.Survey.YearRetained(2015), "the unsampled season is filtered out")
	assert.True(t, s.Survey.YearRetained(2016))
	assert.True(t, s.Survey.YearRetained(2023))
	assert.False(t, s.Survey.YearRetained(2007))
	assert.False(t, s.Survey.YearRetained(2024))
}

func TestYearRangeContains(t *testing.T) {
	r := YearRange{From: 2016, To: 2023}
	assert.True(t, r.Contains(2016))
	assert.True(t, r.Contains(2023))
	assert.False(t, r.Contains(2015))
}
