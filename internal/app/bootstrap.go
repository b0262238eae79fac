// Package app assembles the Postgres-backed runtime shared by the HTTP and
// MCP servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/database"
	"github.com/medconsensus-server/internal/domain"
	"github.com/medconsensus-server/internal/feedback"
	"github.com/medconsensus-server/internal/repository"
	"github.com/medconsensus-server/internal/service"
	"github.com/medconsensus-server/pkg/external"
)

const retentionInterval = time.Hour

// Runtime owns every long-lived dependency of a server process.
type Runtime struct {
	Engine    *service.Engine
	Feedback  feedback.Store
	Providers *external.ProviderSet
	Results   *repository.InteractionRepository
	Checks    map[string]func(ctx context.Context) error

	db        *database.DB
	redis     *redis.Client
	retention time.Duration
	logger    *logrus.Logger
}

// Bootstrap connects to Postgres (running migrations) and Redis when
// configured, then builds the providers and the engine.
func Bootstrap(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*Runtime, error) {
	rt := &Runtime{
		Checks:    map[string]func(ctx context.Context) error{},
		retention: cfg.Engine.ResultRetention,
		logger:    logger,
	}

	dbConfig := database.ConfigFromDomain(cfg.Database)
	migrationsPath := cfg.Database.MigrationsPath
	if migrationsPath == "" {
		migrationsPath = database.DefaultMigrationsPath
	}
	if err := database.Migrate(dbConfig.URL(), migrationsPath, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	rt.db = db
	rt.Checks["database"] = db.Health
	rt.Results = repository.NewInteractionRepository(db.Pool, logger)

	store, err := feedback.NewPostgresStoreFromURL(dbConfig.URL())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open feedback store: %w", err)
	}
	rt.Feedback = store

	if cfg.Cache.RedisURL != "" {
		client, err := external.NewRedisClient(cfg.Cache)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.redis = client
		rt.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	signalCache, err := external.NewSignalCache(cfg.Cache, rt.redis, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create signal cache: %w", err)
	}
	rt.Providers = external.NewProviderSet(cfg.Providers, signalCache, logger)

	engine, err := service.NewEngine(service.EngineDeps{
		Providers: rt.Providers.Providers(),
		Store:     rt.Results,
	}, cfg.Engine, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	rt.Engine = engine

	return rt, nil
}

// RunRetention purges persisted verdicts older than the retention window
// every hour until ctx is cancelled. It returns immediately when retention
// is disabled.
func (rt *Runtime) RunRetention(ctx context.Context) {
	if rt.retention <= 0 || rt.Results == nil {
		return
	}

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		rt.purgeOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (rt *Runtime) purgeOnce(ctx context.Context) {
	cutoff := time.Now().Add(-rt.retention)
	removed, err := rt.Results.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			rt.logger.WithError(err).Warn("Result retention purge failed")
		}
		return
	}
	if removed > 0 {
		rt.logger.WithFields(logrus.Fields{
			"removed": removed,
			"cutoff":  cutoff,
		}).Info("Purged expired interaction results")
	}
}

// Close releases every dependency that was opened.
func (rt *Runtime) Close() {
	if rt.Feedback != nil {
		if err := rt.Feedback.Close(); err != nil {
			rt.logger.WithError(err).Warn("Failed to close feedback store")
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
