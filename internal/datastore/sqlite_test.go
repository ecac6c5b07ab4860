package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcount/avifauna/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(seed int64) *Run {
	run := NewRun(seed, "surveys.csv")
	run.Occasions = 825
	run.TotalBirds = 1862
	run.BestModel = "habitat*year"
	run.GOFPValue = 0.21
	run.Models = []ModelResult{
		{Name: "habitat*year", K: 7, LogLik: -2154.07, AIC: 4322.14, Delta: 0, Weight: 0.97},
		{Name: "null", K: 4, LogLik: -2179.65, AIC: 4367.29, Delta: 45.15, Weight: 0.0},
	}
	run.Predictions = []PredictionRow{
		{Habitat: "forest", Year: 2008, Estimate: 6.27, Lower: 5.1, Upper: 7.7},
		{Habitat: "forest", Year: 2023, Estimate: 2.84, Lower: 2.1, Upper: 3.8},
	}
	run.PowerRows = []PowerRow{
		{Coefficient: "habitatshrub", Power: 0.83, Replicates: 500, MeanEstimate: 0.52},
	}
	return run
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun(20240817)
	require.NoError(t, s.SaveRun(run))
	assert.False(t, run.FinishedAt.IsZero(), "SaveRun stamps the finish time")

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, int64(20240817), got.Seed)
	assert.Equal(t, "habitat*year", got.BestModel)
	require.Len(t, got.Models, 2)
	assert.InDelta(t, 4322.14, got.Models[0].AIC, 1e-9)
	require.Len(t, got.Predictions, 2)
	assert.Equal(t, "forest", got.Predictions[0].Habitat)
	require.Len(t, got.PowerRows, 1)
	assert.InDelta(t, 0.83, got.PowerRows[0].Power, 1e-9)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun("no-such-run")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	old := sampleRun(1)
	old.StartedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.SaveRun(old))

	recent := sampleRun(2)
	require.NoError(t, s.SaveRun(recent))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, recent.RunID, runs[0].RunID)
	assert.Equal(t, old.RunID, runs[1].RunID)
}

func TestBestModelHistory(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun(3)
	require.NoError(t, s.SaveRun(run))

	names, err := s.BestModelHistory(5)
	require.NoError(t, err)
	assert.Equal(t, []string{"habitat*year"}, names)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun(4)
	require.NoError(t, s.SaveRun(run))

	dup := sampleRun(5)
	dup.RunID = run.RunID
	err := s.SaveRun(dup)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}
