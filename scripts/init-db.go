package main

import (
	"context"
	"fmt"
	"log"

	"conveniencia/internal/config"
	"conveniencia/internal/database"
	"conveniencia/internal/migrations"

	"gorm.io/gorm/logger"
)

func main() {
	fmt.Println("Initializing database...")

	// Load configuration
	cfg := config.Load()

	db, err := database.Open(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Force recreate all tables
	fmt.Println("Recreating tables...")
	if err := database.Reset(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	if err := migrations.Seed(context.Background(), db); err != nil {
		log.Fatal("Failed to create default data:", err)
	}

	fmt.Println("Database initialization completed successfully!")
}
