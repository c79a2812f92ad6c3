package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/amerfu/llmgate/internal/config"
	"github.com/amerfu/llmgate/internal/database"
)

// Seeds the store with the default price table and a demo tenant.
// Run from the repo root: go run ./scripts
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if cfg.Store.URI == "" {
		log.Fatal("STORE_URI is required")
	}

	dbConfig := &database.Config{
		DSN:             cfg.Store.URI,
		Database:        cfg.Store.Database,
		MaxConnections:  cfg.Store.MaxConnections,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	}
	if err := database.Initialize(dbConfig); err != nil {
		log.Fatal("Failed to initialize store: ", err)
	}
	defer database.Close()

	if err := database.NewSeeder(database.GetDB()).SeedAll(); err != nil {
		log.Fatal("Seeding failed: ", err)
	}
}
