package datastore

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/logging"
)

// Store is the SQLite-backed run archive.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the archive database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.Newf("no database path configured").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&Run{}, &ModelResult{}, &PredictionRow{}, &PowerRow{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}

	logging.ForService("datastore").Info("run archive opened", "path", path)
	return &Store{db: db}, nil
}

// SaveRun persists a completed run and its child rows in one transaction.
func (s *Store) SaveRun(run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if err := s.db.Create(run).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_run").
			Context("run_id", run.RunID).
			Build()
	}
	return nil
}

// GetRun loads one run, children included, by its UUID.
func (s *Store) GetRun(runID string) (*Run, error) {
	var run Run
	err := s.db.
		Preload("Models").
		Preload("Predictions").
		Preload("PowerRows").
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		category := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(category).
			Context("run_id", runID).
			Build()
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first, without children.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	var runs []Run
	if err := s.db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "list_runs").
			Build()
	}
	return runs, nil
}

// BestModelHistory returns the winning model name of every archived run,
// newest first, for drift spotting across reruns.
func (s *Store) BestModelHistory(limit int) ([]string, error) {
	runs, err := s.ListRuns(limit)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(runs))
	for i := range runs {
		names[i] = runs[i].BestModel
	}
	return names, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return sqlDB.Close()
}
