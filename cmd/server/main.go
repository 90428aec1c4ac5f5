// Package main provides the service entry point: admin API, catalog scheduler and stage workers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raid-tracker/internal/adapter"
	"github.com/raid-tracker/internal/api"
	"github.com/raid-tracker/internal/broadcast"
	"github.com/raid-tracker/internal/catalog"
	"github.com/raid-tracker/internal/config"
	"github.com/raid-tracker/internal/job"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/ratelimit"
	"github.com/raid-tracker/internal/storage"
	"github.com/raid-tracker/internal/types"
	"github.com/raid-tracker/internal/worker"
)

func main() {
	migrateOnBoot := flag.Bool("migrate", true, "Apply pending Postgres migrations before starting")
	flag.Parse()

	fmt.Println("Raid Tracker Server")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if *migrateOnBoot {
		if err := storage.RunMigrations(storage.DatabaseURL(&cfg.Database.Postgres), storage.DefaultMigrationsPath); err != nil {
			logger.WithError(err).Fatal("Failed to apply migrations")
		}
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	cacheStore, closeCache, err := newCacheStore(cfg, postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache backend")
	}
	defer closeCache()
	cacheService := storage.NewCacheService(cacheStore, logger)

	coordinator, err := ratelimit.NewCoordinator(&ratelimit.CoordinatorConfig{
		Providers: map[types.Provider]ratelimit.ProviderConfig{
			types.ProviderCombatLog: quotaConfig(cfg.Providers.CombatLog),
			types.ProviderDungeon:   quotaConfig(cfg.Providers.Dungeon),
			types.ProviderProfile:   quotaConfig(cfg.Providers.Profile),
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

	catalogRepo := storage.NewCatalogRepository(postgres)

	engine, err := catalog.NewEngine(&catalog.EngineConfig{
		Store:               catalogRepo,
		Cache:               cacheService,
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

	scheduler, err := catalog.NewScheduler(&catalog.SchedulerConfig{
		Syncer:    engine,
		Logger:    logger,
		OnBoot:    cfg.Sync.OnBoot,
		DailyHour: cfg.Sync.DailyHour,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create catalog scheduler")
	}

	queueRepo := storage.NewQueueRepository(postgres)
	pipeline, err := job.NewPipeline(&job.PipelineConfig{
		Processing:  storage.NewProcessingRepository(postgres),
		Queue:       queueRepo,
		Characters:  storage.NewCharacterRepository(postgres),
		Catalog:     catalogRepo,
		Cache:       cacheService,
		Profiles:    profiles,
		Rankings:    combatLog,
		Dungeons:    dungeons,
		StaticMeta:  dungeons,
		Broadcaster: broadcast.NewBroadcaster(logger),
		Logger:      logger,
		Seasons:     catalog.TrackedSeasons(cfg.Catalog.Seasons, cfg.Catalog.TrackedExpansionIDs),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create processing pipeline")
	}

	// The lightweight stage calls all three providers; the deep stage only
	// reads combat-log data.
	stageProviders := map[types.Stage][]types.Provider{
		types.StageLightweight: types.AllProviders,
		types.StageDeep:        {types.ProviderCombatLog},
	}
	workers := make(map[types.Stage]*worker.StageWorker, len(stageProviders))
	reporters := make([]api.WorkerReporter, 0, len(stageProviders))
	for _, stage := range []types.Stage{types.StageLightweight, types.StageDeep} {
		w, err := worker.NewStageWorker(&worker.StageWorkerConfig{
			Stage:        stage,
			Source:       queueRepo,
			Processor:    pipeline,
			PollInterval: cfg.Queue.PollInterval,
			Logger:       logger,
			Coordinator:  coordinator,
			Providers:    stageProviders[stage],
		})
		if err != nil {
			logger.WithError(err).WithField("stage", string(stage)).Fatal("Failed to create stage worker")
		}
		workers[stage] = w
		reporters = append(reporters, w)
	}
	pipeline.OnEnqueue(func(stage types.Stage) {
		if w, ok := workers[stage]; ok {
			w.Wake()
		}
	})

	server, err := api.NewServer(&api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous catalog syncs
		IdleTimeout:  60 * time.Second,
		RequestRPS:   20,
		RequestBurst: 40,
	}, &api.Dependencies{
		Syncer:     scheduler,
		Catalog:    engine,
		Processing: pipeline,
		RateLimits: coordinator,
		Providers: map[types.Provider]adapter.HealthReporter{
			types.ProviderCombatLog: combatLog,
			types.ProviderDungeon:   dungeons,
			types.ProviderProfile:   profiles,
		},
		Workers: reporters,
		Logger:  logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create API server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the combat-log quota from the provider before the first call
	if err := combatLog.RefreshRateLimit(ctx); err != nil {
		logger.WithError(err).Warn("Failed to read combat-log quota, starting from configured limit")
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start catalog scheduler")
	}
	for stage, w := range workers {
		if err := w.Start(ctx); err != nil {
			logger.WithError(err).WithField("stage", string(stage)).Fatal("Failed to start stage worker")
		}
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":  cfg.Server.Host,
		"port":  cfg.Server.Port,
		"cache": cfg.Cache.Backend,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	scheduler.Stop()
	for stage, w := range workers {
		if err := w.Stop(shutdownCtx); err != nil {
			logger.WithError(err).WithField("stage", string(stage)).Warn("Stage worker did not stop cleanly")
		}
	}
	cancel()

	logger.Info("Server exited")
}

// quotaConfig extracts the coordinator settings from a provider block
func quotaConfig(p config.ProviderConfig) ratelimit.ProviderConfig {
	return ratelimit.ProviderConfig{
		HourlyLimit:  p.HourlyLimit,
		LowWaterMark: p.LowWaterMark,
		ResumeBuffer: p.ResumeBuffer,
		CallDelay:    p.CallDelay,
	}
}

// newCacheStore opens the configured cache backend
func newCacheStore(cfg *config.Config, postgres *storage.PostgresDB) (storage.CacheStore, func(), error) {
	if cfg.Cache.Backend == "postgres" {
		return storage.NewPostgresCacheStore(postgres), func() {}, nil
	}

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return storage.NewRedisCacheStore(redis, cfg.Cache.Grace), func() { _ = redis.Close() }, nil
}
