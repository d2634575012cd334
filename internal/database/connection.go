package database

import (
	"fmt"
	"log"
	"strings"

	"conveniencia/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Initialize(databaseURL string) (*gorm.DB, error) {
	db, err := Open(databaseURL, logger.Warn)
	if err != nil {
		return nil, err
	}

	// Auto migrate all models
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database connected and migrated successfully")
	return db, nil
}

// Open connects without migrating. URLs starting with "sqlite:" or "file:"
// (and ":memory:") go to SQLite, anything else to Postgres.
func Open(databaseURL string, level logger.LogLevel) (*gorm.DB, error) {
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}

	dialector, memory := dialectorFor(databaseURL)
	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if memory {
		// every new connection to :memory: would see an empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, bool) {
	switch {
	case databaseURL == ":memory:":
		return sqlite.Open(":memory:"), true
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		return sqlite.Open(path), path == ":memory:"
	case strings.HasPrefix(databaseURL, "file:"):
		return sqlite.Open(databaseURL), strings.Contains(databaseURL, ":memory:")
	default:
		return postgres.Open(databaseURL), false
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.Tab{},
		&models.OrderLine{},
	)
}

// Reset drops and recreates every table.
func Reset(db *gorm.DB) error {
	err := db.Migrator().DropTable(
		&models.OrderLine{},
		&models.Tab{},
		&models.Product{},
		&models.Category{},
	)
	if err != nil {
		log.Printf("Warning: Error dropping tables: %v", err)
	}
	return AutoMigrate(db)
}
