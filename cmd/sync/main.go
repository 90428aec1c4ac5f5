// Package main runs a single catalog sync and prints its result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/raid-tracker/internal/adapter"
	"github.com/raid-tracker/internal/catalog"
	"github.com/raid-tracker/internal/config"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/ratelimit"
	"github.com/raid-tracker/internal/storage"
	"github.com/raid-tracker/internal/types"
)

func main() {
	var (
		force     = flag.Bool("force", false, "Bypass cache reads")
		skipIcons = flag.Bool("skip-icons", false, "Skip achievement icon resolution")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var cacheStore storage.CacheStore
	if cfg.Cache.Backend == "postgres" {
		cacheStore = storage.NewPostgresCacheStore(postgres)
	} else {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()
		cacheStore = storage.NewRedisCacheStore(redis, cfg.Cache.Grace)
	}

	coordinator, err := ratelimit.NewCoordinator(&ratelimit.CoordinatorConfig{
		Providers: map[types.Provider]ratelimit.ProviderConfig{
			types.ProviderCombatLog: {HourlyLimit: cfg.Providers.CombatLog.HourlyLimit, LowWaterMark: cfg.Providers.CombatLog.LowWaterMark, CallDelay: cfg.Providers.CombatLog.CallDelay},
			types.ProviderDungeon:   {HourlyLimit: cfg.Providers.Dungeon.HourlyLimit, LowWaterMark: cfg.Providers.Dungeon.LowWaterMark, CallDelay: cfg.Providers.Dungeon.CallDelay},
			types.ProviderProfile:   {HourlyLimit: cfg.Providers.Profile.HourlyLimit, LowWaterMark: cfg.Providers.Profile.LowWaterMark, CallDelay: cfg.Providers.Profile.CallDelay},
		},
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create rate limit coordinator")
	}
	defer coordinator.Stop()

	combatLog, err := adapter.NewCombatLogClient(&cfg.Providers.CombatLog, coordinator, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create combat log client")
	}
	dungeons, err := adapter.NewDungeonClient(&cfg.Providers.Dungeon, coordinator, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create dungeon client")
	}
	profiles, err := adapter.NewProfileClient(&cfg.Providers.Profile, coordinator, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create profile client")
	}

	engine, err := catalog.NewEngine(&catalog.EngineConfig{
		Store:               storage.NewCatalogRepository(postgres),
		Cache:               storage.NewCacheService(cacheStore, logger),
		Structure:           combatLog,
		StaticMeta:          dungeons,
		Icons:               profiles,
		Logger:              logger,
		TrackedZoneIDs:      cfg.Catalog.TrackedZoneIDs,
		CurrentTierZoneIDs:  cfg.Catalog.CurrentTierZoneIDs,
		TrackedExpansionIDs: cfg.Catalog.TrackedExpansionIDs,
		Seasons:             cfg.Catalog.Seasons,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create catalog engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, syncErr := engine.Sync(ctx, catalog.Options{Force: *force, SkipIcons: *skipIcons})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if result != nil {
		if err := enc.Encode(result); err != nil {
			logger.WithError(err).Error("Failed to print sync result")
		}
	}

	if syncErr != nil {
		logger.WithError(syncErr).Error("Catalog sync failed")
		stop()
		os.Exit(1)
	}
}
