// Package repository provides data access layer abstractions and registry
package repository

import (
	"fmt"
	"sync"

	"github.com/jgirmay/meetingbot/pkg/models"
	"gorm.io/gorm"
)

// Registry provides centralized access to all repositories
type Registry struct {
	BotSessionRepository           BotSessionRepository
	WorkspaceBotSettingsRepository WorkspaceBotSettingsRepository

	db *gorm.DB
	mu sync.RWMutex
}

// NewRegistry creates a new repository registry
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db: db,
	}
}

// Initialize initializes all repositories
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return fmt.Errorf("repository registry has no database")
	}

	r.BotSessionRepository = NewBotSessionRepository(r.db)
	r.WorkspaceBotSettingsRepository = NewWorkspaceBotSettingsRepository(r.db)

	return nil
}

// Migrate creates or updates the schema
func (r *Registry) Migrate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.db.AutoMigrate(&models.BotSession{}, &models.WorkspaceBotSettings{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := r.db.Exec(activeMeetingIndex).Error; err != nil {
		return fmt.Errorf("failed to create active meeting index: %w", err)
	}
	return nil
}

// GetDB returns the database connection
func (r *Registry) GetDB() *gorm.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db
}

// Close closes the registry and all resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database connection: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
