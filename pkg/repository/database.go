package repository

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database. sqlite is limited to a single
// connection so transactions serialize instead of failing with SQLITE_BUSY.
func Open(driver, dsn string, maxOpenConns int) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
		maxOpenConns = 1
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}

	return db, nil
}

// OpenMemory returns a migrated in-memory sqlite registry
func OpenMemory() (*Registry, error) {
	db, err := Open("sqlite", ":memory:", 1)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry(db)
	if err := registry.Initialize(); err != nil {
		return nil, err
	}
	if err := registry.Migrate(); err != nil {
		return nil, err
	}
	return registry, nil
}
