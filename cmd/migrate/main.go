// Package main applies, rolls back and inspects the Postgres schema.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/raid-tracker/internal/config"
	"github.com/raid-tracker/internal/storage"
)

func main() {
	var (
		action  = flag.String("action", "up", "Migration action: up, down, version, force")
		path    = flag.String("path", storage.DefaultMigrationsPath, "Directory holding the migration files")
		version = flag.Int("version", -1, "Version to record for -action=force")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if _, err := os.Stat(*path); err != nil {
		log.Fatalf("Migrations directory not readable: %v", err)
	}

	if err := run(storage.DatabaseURL(&cfg.Database.Postgres), *path, *action, *version); err != nil {
		log.Fatalf("Migration %s failed: %v", *action, err)
	}
}

func run(databaseURL, path, action string, version int) error {
	switch action {
	case "up":
		if err := storage.RunMigrations(databaseURL, path); err != nil {
			return err
		}
		log.Println("Schema is up to date")

	case "down":
		if err := storage.RollbackMigrations(databaseURL, path); err != nil {
			return err
		}
		log.Println("Rolled back one migration")

	case "version":
		v, dirty, err := storage.MigrationVersion(databaseURL, path)
		if err != nil {
			return err
		}
		log.Printf("Schema version %d (dirty: %v)", v, dirty)

	case "force":
		if version < 0 {
			return fmt.Errorf("force requires -version")
		}
		if err := storage.ForceMigrationVersion(databaseURL, path, version); err != nil {
			return err
		}
		log.Printf("Schema version forced to %d", version)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
