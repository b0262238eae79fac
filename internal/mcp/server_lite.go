package mcp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/config"
	"github.com/medconsensus-server/internal/domain"
	"github.com/medconsensus-server/internal/feedback"
	"github.com/medconsensus-server/internal/repository"
	"github.com/medconsensus-server/internal/service"
	"github.com/medconsensus-server/pkg/external"
)

// LiteServerOption is a functional option for NewLiteServer.
type LiteServerOption func(*liteOptions)

type liteOptions struct {
	logger    *logrus.Logger
	feedback  feedback.Store
	providers []domain.SignalProvider
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(o *liteOptions) { o.logger = logger }
}

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(o *liteOptions) { o.feedback = store }
}

// WithProviders replaces the configured external providers.
func WithProviders(providers ...domain.SignalProvider) LiteServerOption {
	return func(o *liteOptions) { o.providers = providers }
}

// NewLiteServer creates an MCP server that needs no external database.
// Verdicts and feedback are persisted in SQLite under cfg.DataDir and
// provider responses are cached in memory.
func NewLiteServer(cfg *config.LiteConfig, opts ...LiteServerOption) (*Server, error) {
	options := &liteOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	if logger == nil {
		var err error
		if logger, err = config.NewLogger(cfg.LoggingConfig()); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	results, err := repository.NewSQLiteResultStore(cfg.ResultsDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open results store: %w", err)
	}
	closers = append(closers, results.Close)

	store := options.feedback
	if store == nil {
		sqliteStore, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to open feedback store: %w", err)
		}
		store = sqliteStore
		closers = append(closers, sqliteStore.Close)
	}

	providers := options.providers
	if providers == nil {
		signalCache, err := external.NewSignalCache(cfg.CacheConfig(), nil, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to create signal cache: %w", err)
		}
		providers = external.NewProviderSet(cfg.ProvidersConfig(), signalCache, logger).Providers()
	}

	engine, err := service.NewEngine(service.EngineDeps{
		Providers: providers,
		Store:     results,
	}, domain.EngineConfig{
		MaxTriples:       cfg.MaxTriples,
		SessionCacheSize: cfg.SessionCacheSize,
	}, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	server, err := NewServer(ServerDeps{
		Engine:    engine,
		Feedback:  store,
		ExportDir: cfg.ExportDir(),
	}, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	for _, fn := range closers {
		server.OnClose(fn)
	}

	logger.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"providers": len(providers),
	}).Info("Lite server initialized")
	return server, nil
}
