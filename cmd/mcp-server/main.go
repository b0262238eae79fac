// Command mcp-server serves the interaction tools over MCP using the same
// Postgres and Redis backed runtime as the HTTP server.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/medconsensus-server/internal/app"
	"github.com/medconsensus-server/internal/config"
	"github.com/medconsensus-server/internal/mcp"
)

func main() {
	configFile := flag.String("config", "", "path to a configuration file")
	transport := flag.String("transport", mcp.TransportStdio, "stdio or http")
	port := flag.Int("port", 8081, "listen port for the http transport")
	exportDir := flag.String("export-dir", "exports", "directory for feedback exports")
	flag.Parse()

	configManager, err := config.NewManagerFromFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	// stdout carries protocol traffic on the stdio transport.
	if *transport == mcp.TransportStdio {
		cfg.Logging.Output = "stderr"
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize MCP server")
	}
	defer runtime.Close()

	server, err := mcp.NewServer(mcp.ServerDeps{
		Engine:    runtime.Engine,
		Feedback:  runtime.Feedback,
		ExportDir: *exportDir,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	go runtime.RunRetention(ctx)

	if err := server.Run(ctx, *transport, *port); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}
	logger.Info("MCP server stopped")
}
