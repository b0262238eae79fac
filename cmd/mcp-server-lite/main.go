// Command mcp-server-lite serves the interaction tools over MCP with no
// external database: verdicts and feedback are kept in SQLite.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medconsensus-server/internal/config"
	"github.com/medconsensus-server/internal/mcp"
	"github.com/medconsensus-server/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI(os.Stdout).Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	cfg := config.LoadLiteConfig()

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg.Transport, cfg.HTTPPort); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}
}
