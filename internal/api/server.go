// Package api exposes the consensus engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
	"github.com/medconsensus-server/internal/feedback"
	"github.com/medconsensus-server/internal/middleware"
	"github.com/medconsensus-server/internal/service"
	"github.com/medconsensus-server/pkg/external"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthCheck checks one dependency; a nil error means healthy.
type HealthCheck func(ctx context.Context) error

// ServerDeps bundles what the HTTP handlers call. Feedback, Providers and
// Checks are optional.
type ServerDeps struct {
	Engine    *service.Engine
	Feedback  feedback.Store
	Providers *external.ProviderSet
	Checks    map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	config domain.ServerConfig
	deps   ServerDeps
	router *gin.Engine
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(config domain.ServerConfig, deps ServerDeps, logger *logrus.Logger) *Server {
	if logger.GetLevel() >= logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestTimeout(config.RequestTimeout))

	s := &Server{
		config: config,
		deps:   deps,
		router: router,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/interactions/check", s.handleCheck)
		v1.POST("/interactions/combinations", s.handleCombinations)
		v1.POST("/consensus", s.handleConsensus)

		v1.GET("/cache/stats", s.handleCacheStats)
		v1.DELETE("/cache", s.handleCacheClear)

		fb := v1.Group("/feedback")
		fb.POST("", s.handleFeedbackSave)
		fb.GET("", s.handleFeedbackList)
		fb.GET("/lookup", s.handleFeedbackGet)
		fb.DELETE("/:id", s.handleFeedbackDelete)
		fb.GET("/export", s.handleFeedbackExport)
		fb.POST("/import", s.handleFeedbackImport)
	}
}

// respondError writes an EngineError body carrying the correlation id.
func respondError(c *gin.Context, status int, code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.AbortWithStatusJSON(status, domain.NewEngineError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}
