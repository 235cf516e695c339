package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cms-analytics-server/internal/api"
	"github.com/cms-analytics-server/internal/cache"
	"github.com/cms-analytics-server/internal/config"
	"github.com/cms-analytics-server/internal/database"
	"github.com/cms-analytics-server/internal/store"
	"github.com/cms-analytics-server/pkg/cms"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var snapshots store.Store
	switch cfg.Database.Driver {
	case "postgres":
		// Verify connectivity through the pool before committing to the
		// store, then bring the schema up to date.
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to postgres")
		}
		defer db.Close()

		runner, err := database.NewMigrationRunner(database.URL(&cfg.Database), cfg.Database.MigrationsPath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create migration runner")
		}
		if err := runner.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
		runner.Close()

		snapshots, err = store.NewPostgresStoreFromURL(database.URL(&cfg.Database))
		if err != nil {
			logger.WithError(err).Fatal("Failed to open postgres store")
		}
	default:
		snapshots, err = store.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open sqlite store")
		}
	}
	defer snapshots.Close()

	snapshotCache, err := cache.NewSnapshotCache(cfg.Cache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create snapshot cache")
	}

	fetcher := cms.NewClient(cfg.CMS, logger)
	server := api.NewServer(cfg, logger, snapshots, snapshotCache, fetcher)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
