package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/medconsensus-server/internal/api"
	"github.com/medconsensus-server/internal/app"
	"github.com/medconsensus-server/internal/config"
)

func main() {
	configFile := flag.String("config", "", "path to a configuration file")
	flag.Parse()

	configManager, err := config.NewManagerFromFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize server")
	}
	defer runtime.Close()

	checks := make(map[string]api.HealthCheck, len(runtime.Checks))
	for name, check := range runtime.Checks {
		checks[name] = check
	}

	server := api.NewServer(cfg.Server, api.ServerDeps{
		Engine:    runtime.Engine,
		Feedback:  runtime.Feedback,
		Providers: runtime.Providers,
		Checks:    checks,
	}, logger)

	go runtime.RunRetention(ctx)

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}
