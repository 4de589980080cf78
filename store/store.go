// Package store persists projects, chapters, scenes, compendium entries,
// prompt templates and the prompt-history log in a local sqlite database.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"writingway/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the record-oriented storage collaborator.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// AllModels returns every persisted model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Project{},
		&models.Chapter{},
		&models.Scene{},
		&models.SceneContent{},
		&models.CompendiumEntry{},
		&models.Prompt{},
		&models.PromptHistory{},
	}
}

// Open opens (creating if needed) the sqlite database at path and migrates it.
func Open(path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return New(db, log)
}

// New wraps an existing gorm connection and migrates the schema.
func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return sqlDB.Close()
}

func newID() string {
	return uuid.NewString()
}

// notFound maps gorm's record-not-found to ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return fmt.Errorf("store: get %s %s: %w", what, id, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
