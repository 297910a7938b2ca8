// Package store persists account-session bindings and the activity log.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hbeckert/concierge/internal/config"
	"github.com/hbeckert/concierge/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store wraps the bindings database. All writes go through the Session
// Registry one at a time; the store itself performs no locking beyond the
// driver's.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured backend and migrates the schema.
func Open(cfg config.StoreConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create %s: %w", dir, err)
			}
		}
		dialector = sqlite.Open(cfg.Path)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect (%s): %w", cfg.Driver, err)
	}
	return Wrap(db)
}

// Wrap builds a Store around an existing connection and migrates the schema.
// Tests use this with an in-memory sqlite database.
func Wrap(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.AccountBinding{}, &models.ActivityRecord{}); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// ListBindings returns all persisted bindings ordered by creation time.
func (s *Store) ListBindings() ([]models.AccountBinding, error) {
	var bindings []models.AccountBinding
	if err := s.db.Order("created_at ASC, id ASC").Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("store: list bindings: %w", err)
	}
	return bindings, nil
}

// UpsertBinding creates or updates a binding by id. The partition key is
// deliberately excluded from the update set: it is immutable and rewriting it
// would orphan the account's storage partition.
func (s *Store) UpsertBinding(b models.AccountBinding) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"platform", "display_name", "updated_at"}),
	}).Create(&b)
	if result.Error != nil {
		return fmt.Errorf("store: upsert binding %s: %w", b.ID, result.Error)
	}
	return nil
}

// DeleteBinding removes a binding. Deleting an absent id is not an error.
func (s *Store) DeleteBinding(id string) error {
	if err := s.db.Delete(&models.AccountBinding{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("store: delete binding %s: %w", id, err)
	}
	return nil
}

// ReplaceBindings rewrites the whole bindings table in one transaction. The
// backend mirror uses this for its wholesale sync.
func (s *Store) ReplaceBindings(bindings []models.AccountBinding) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.AccountBinding{}).Error; err != nil {
			return err
		}
		for i := range bindings {
			if err := tx.Create(&bindings[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: replace bindings: %w", err)
	}
	return nil
}

// AppendActivity records one detected delta.
func (s *Store) AppendActivity(rec models.ActivityRecord) error {
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("store: append activity: %w", err)
	}
	return nil
}

// UnseenActivityCount returns the number of activity rows not yet surfaced to
// the user. This backs the dashboard badge count.
func (s *Store) UnseenActivityCount() (int64, error) {
	var count int64
	if err := s.db.Model(&models.ActivityRecord{}).Where("seen = ?", false).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: unseen count: %w", err)
	}
	return count, nil
}

// MarkActivitySeen marks all activity rows as seen.
func (s *Store) MarkActivitySeen() error {
	if err := s.db.Model(&models.ActivityRecord{}).Where("seen = ?", false).
		Update("seen", true).Error; err != nil {
		return fmt.Errorf("store: mark seen: %w", err)
	}
	return nil
}
