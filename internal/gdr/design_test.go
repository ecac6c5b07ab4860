package gdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/survey"
)

func designCovs() []survey.OccasionKey {
	return []survey.OccasionKey{
		{Transect: "T01", Point: "P1", Year: 2010, DOY: 150, Habitat: "forest"},
		{Transect: "T01", Point: "P2", Year: 2011, DOY: 151, Habitat: "shrub"},
		{Transect: "T02", Point: "P3", Year: 2012, DOY: 152, Habitat: "forest"},
		{Transect: "T02", Point: "P4", Year: 2012, DOY: 153, Habitat: "grass"},
	}
}

func TestEncodingColumns(t *testing.T) {
	tests := []struct {
		formula string
		want    []string
	}{
		{"~1", []string{"(Intercept)"}},
		{"~habitat", []string{"(Intercept)", "habitatshrub", "habitatgrass"}},
		{"~year", []string{"(Intercept)", "year"}},
		{"~habitat+year", []string{"(Intercept)", "habitatshrub", "habitatgrass", "year"}},
		{"~habitat*year", []string{"(Intercept)", "habitatshrub", "habitatgrass", "year", "habitatshrub:year", "habitatgrass:year"}},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			enc, err := newEncoding(MustParseFormula(tt.formula), designCovs())
			require.NoError(t, err)
			assert.Equal(t, tt.want, enc.colNames())
		})
	}
}

func TestBuildMatrixValues(t *testing.T) {
	covs := designCovs()
	enc, err := newEncoding(MustParseFormula("~habitat*year"), covs)
	require.NoError(t, err)

	x, err := enc.buildMatrix(covs)
	require.NoError(t, err)

	r, c := x.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 6, c)

	// Row 0: forest (reference), year 2010 = origin.
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 0}, x.RawRowView(0))
	// Row 1: shrub, year offset 1, interaction shrub:year = 1.
	assert.Equal(t, []float64{1, 1, 0, 1, 1, 0}, x.RawRowView(1))
	// Row 3: grass, year offset 2, interaction grass:year = 2.
	assert.Equal(t, []float64{1, 0, 1, 2, 0, 2}, x.RawRowView(3))
}

func TestBuildMatrixRejectsUnseenLevel(t *testing.T) {
	covs := designCovs()
	enc, err := newEncoding(MustParseFormula("~habitat"), covs)
	require.NoError(t, err)

	_, err = enc.buildMatrix([]survey.OccasionKey{{Habitat: "wetland", Year: 2010}})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStructure))
}

func TestEncodingRejectsSingleLevelFactor(t *testing.T) {
	covs := []survey.OccasionKey{
		{Transect: "T01", Habitat: "forest", Year: 2010},
		{Transect: "T01", Habitat: "forest", Year: 2011},
	}
	_, err := newEncoding(MustParseFormula("~habitat"), covs)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStructure))
}

func TestGroupIndex(t *testing.T) {
	idx, names := groupIndex(designCovs(), "transect")
	assert.Equal(t, []int{0, 0, 1, 1}, idx)
	assert.Equal(t, []string{"T01", "T02"}, names)
}
