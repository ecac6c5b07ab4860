package gdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/errors"
)

func TestParseFormula(t *testing.T) {
	tests := []struct {
		raw        string
		wantTerms  []string
		wantRandom string
	}{
		{"~1", nil, ""},
		{"~habitat", []string{"habitat"}, ""},
		{"~habitat+year", []string{"habitat", "year"}, ""},
		{"~habitat:year", []string{"habitat:year"}, ""},
		{"~habitat*year", []string{"habitat", "year", "habitat:year"}, ""},
		{"~habitat*year+(1|transect)", []string{"habitat", "year", "habitat:year"}, "transect"},
		{"~1+(1|transect)", nil, "transect"},
		{"~ habitat + year ", []string{"habitat", "year"}, ""},
		{"~habitat+habitat", []string{"habitat"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			f, err := ParseFormula(tt.raw)
			require.NoError(t, err)
			var terms []string
			for _, tm := range f.Terms {
				terms = append(terms, tm.String())
			}
			assert.Equal(t, tt.wantTerms, terms)
			assert.Equal(t, tt.wantRandom, f.RandomGroup)
		})
	}
}

func TestParseFormulaErrors(t *testing.T) {
	bad := []string{
		"habitat",                 // no tilde
		"~",                       // empty
		"~habitat++year",          // empty term
		"~elevation",              // unknown covariate
		"~habitat*year*doy",       // three-way cross
		"~(1|year)",               // numeric grouping covariate
		"~(1|transect)+(1|point)", // two random terms
	}
	for _, raw := range bad {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseFormula(raw)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestInterceptOnly(t *testing.T) {
	assert.True(t, MustParseFormula("~1").InterceptOnly())
	assert.False(t, MustParseFormula("~habitat").InterceptOnly())
	assert.False(t, MustParseFormula("~1+(1|transect)").InterceptOnly())
}

func TestMustParseFormulaPanics(t *testing.T) {
	assert.Panics(t, func() { MustParseFormula("nope") })
}
