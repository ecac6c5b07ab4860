// Package datastore archives analysis runs in a SQLite database so past
// results stay queryable: which models were fitted, their AIC ranking,
// the predictions, and any power analysis.
package datastore

import (
	"time"

	"github.com/google/uuid"
)

// Run is one complete analysis invocation.
type Run struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"uniqueIndex;size:36"` // UUID of the run
	StartedAt  time.Time
	FinishedAt time.Time
	Seed       int64
	Source     string // survey input path
	Occasions  int
	TotalBirds int
	BestModel  string
	GOFPValue  float64

	Models      []ModelResult   `gorm:"foreignKey:RunRef"`
	Predictions []PredictionRow `gorm:"foreignKey:RunRef"`
	PowerRows   []PowerRow      `gorm:"foreignKey:RunRef"`
}

// ModelResult is one candidate model's selection-table row.
type ModelResult struct {
	ID     uint   `gorm:"primaryKey"`
	RunRef uint   `gorm:"index"`
	Name   string `gorm:"size:100"`
	K      int
	LogLik float64
	AIC    float64
	Delta  float64
	Weight float64
}

// PredictionRow is one predicted abundance value from the best model.
type PredictionRow struct {
	ID       uint   `gorm:"primaryKey"`
	RunRef   uint   `gorm:"index"`
	Habitat  string `gorm:"size:50;index"`
	Year     int    `gorm:"index"`
	Estimate float64
	Lower    float64
	Upper    float64
}

// PowerRow is one target effect's power-analysis outcome.
type PowerRow struct {
	ID           uint   `gorm:"primaryKey"`
	RunRef       uint   `gorm:"index"`
	Coefficient  string `gorm:"size:100"`
	Power        float64
	Replicates   int
	Failed       int
	MeanEstimate float64
}

// NewRun starts a Run record with a fresh UUID.
func NewRun(seed int64, source string) *Run {
	return &Run{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Seed:      seed,
		Source:    source,
	}
}
