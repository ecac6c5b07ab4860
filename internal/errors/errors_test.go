package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	base := stderrors.New("row totals disagree")
	ee := New(base).
		Component("aggregator").
		Category(CategoryDataIntegrity).
		Context("occasion", "T01/P3/2012").
		Context("distance_total", 4).
		Context("removal_total", 5).
		Build()

	assert.Equal(t, "row totals disagree", ee.Error())
	assert.Equal(t, "aggregator", ee.Component)
	assert.Equal(t, CategoryDataIntegrity, ee.Category)
	assert.Equal(t, "T01/P3/2012", ee.GetContext()["occasion"])
	assert.True(t, Is(ee, base), "enhanced error should unwrap to the base error")
}

func TestBuildDefaults(t *testing.T) {
	ee := Newf("no formula named %q", "gamma").Build()
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Nil(t, ee.GetContext())
	assert.False(t, ee.Timestamp.IsZero())
}

func TestContextIsCopied(t *testing.T) {
	ee := Newf("boom").Context("k", 1).Build()
	ctx := ee.GetContext()
	ctx["k"] = 2
	assert.Equal(t, 1, ee.GetContext()["k"], "mutating the returned map must not affect the error")
}

func TestIsCategory(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		want     bool
	}{
		{"matching category", StructureError("3 covariate rows, 4 matrix rows"), CategoryStructure, true},
		{"different category", AssertionError("AIC drifted"), CategoryStructure, false},
		{"plain error", stderrors.New("plain"), CategoryStructure, false},
		{"wrapped enhanced error", Join(stderrors.New("outer"), DataIntegrityError("inner")), CategoryDataIntegrity, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCategory(tt.err, tt.category))
		})
	}
}

func TestCategoryEquivalenceViaIs(t *testing.T) {
	a := DataIntegrityError("first")
	b := DataIntegrityError("second")
	require.True(t, stderrors.Is(a, b), "same-category enhanced errors compare equal under Is")
	c := StructureError("third")
	assert.False(t, stderrors.Is(a, c))
}

func TestIsNotFound(t *testing.T) {
	err := Newf("candidate model %q not in set", "global").Category(CategoryNotFound).Build()
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(stderrors.New("nope")))
}
