package survey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/errors"
)

const sampleHeader = "TransectName,Point,Year,DOY,Habitat,DistanceBin,TimeBin,Count\n"

func TestLoadParsesRecords(t *testing.T) {
	input := sampleHeader +
		"T01,P1,2010,152,forest,near,3,2\n" +
		"T01,P1,2010,152,forest,far,5,1\n" +
		"T01,P1,2010,152,forest,NEAR,10,0\n"

	l := NewLoader(nil)
	records, err := l.Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Record{
		Transect: "T01", Point: "P1", Year: 2010, DOY: 152,
		Habitat: "forest", DistanceBin: "near", TimeBin: "3", Count: 2,
	}, records[0])
	assert.Equal(t, "near", records[2].DistanceBin, "bin labels normalize to lower case")
}

func TestLoadAppliesYearFilter(t *testing.T) {
	input := sampleHeader +
		"T01,P1,2010,152,forest,near,3,2\n" +
		"T01,P1,2015,152,forest,near,3,4\n" +
		"T01,P1,2016,150,forest,far,5,1\n"

	l := NewLoader(func(year int) bool { return year != 2015 })
	records, err := l.Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, 2015, r.Year)
	}
}

func TestLoadEmptyAndNACountsMeanZero(t *testing.T) {
	input := sampleHeader +
		"T01,P1,2010,152,forest,near,3,\n" +
		"T01,P1,2010,152,forest,far,5,NA\n"

	records, err := NewLoader(nil).Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 0, records[0].Count)
	assert.Equal(t, 0, records[1].Count)
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		category errors.ErrorCategory
	}{
		{
			"missing required column",
			"TransectName,Point,Year,DOY,Habitat,DistanceBin,TimeBin\nT01,P1,2010,152,forest,near,3\n",
			errors.CategoryDataIntegrity,
		},
		{
			"negative count",
			sampleHeader + "T01,P1,2010,152,forest,near,3,-1\n",
			errors.CategoryDataIntegrity,
		},
		{
			"unknown distance bin",
			sampleHeader + "T01,P1,2010,152,forest,middle,3,1\n",
			errors.CategoryDataIntegrity,
		},
		{
			"unknown time bin",
			sampleHeader + "T01,P1,2010,152,forest,near,7,1\n",
			errors.CategoryDataIntegrity,
		},
		{
			"non-numeric year",
			sampleHeader + "T01,P1,twenty-ten,152,forest,near,3,1\n",
			errors.CategoryDataIntegrity,
		},
		{
			"empty transect",
			sampleHeader + ",P1,2010,152,forest,near,3,1\n",
			errors.CategoryDataIntegrity,
		},
		{
			"all records filtered out",
			sampleHeader + "T01,P1,1999,152,forest,near,3,1\n",
			errors.CategoryDataIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoader(func(year int) bool { return year >= 2008 })
			_, err := l.Load(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
		})
	}
}
