// Package mcp exposes the consensus engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/feedback"
	"github.com/medconsensus-server/internal/service"
)

const (
	ServerName    = "medconsensus-mcp-server"
	ServerVersion = "v1.0.0"

	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Server is an MCP server backed by a consensus engine.
type Server struct {
	mcpServer *mcp.Server
	tools     *Tools
	logger    *logrus.Logger
	closers   []func() error
}

// ServerDeps are the collaborators of an MCP server. Feedback may be nil.
type ServerDeps struct {
	Engine    *service.Engine
	Feedback  feedback.Store
	ExportDir string
}

// NewServer creates an MCP server and registers the tools.
func NewServer(deps ServerDeps, logger *logrus.Logger) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("engine is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	tools := NewTools(deps.Engine, deps.Feedback, deps.ExportDir, logger)
	tools.Register(mcpServer)

	return &Server{
		mcpServer: mcpServer,
		tools:     tools,
		logger:    logger,
	}, nil
}

// Tools returns the tool handlers.
func (s *Server) Tools() *Tools {
	return s.tools
}

// OnClose registers a cleanup function run by Close, in reverse order.
func (s *Server) OnClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Run serves the given transport until ctx is cancelled or the client
// disconnects. port is used by the HTTP transport only.
func (s *Server) Run(ctx context.Context, transport string, port int) error {
	s.logger.WithField("transport", transport).Info("Starting MCP server")

	switch transport {
	case "", TransportStdio:
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case TransportHTTP:
		return s.runHTTP(ctx, port)
	default:
		return fmt.Errorf("unsupported transport: %s", transport)
	}
}

func (s *Server) runHTTP(ctx context.Context, port int) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", httpServer.Addr).Info("MCP HTTP transport listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close releases every registered resource.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.WithError(err).Error("Failed to release MCP server resource")
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
