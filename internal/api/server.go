// Package api exposes the analytics engine over HTTP. The presentation
// layer consumes these JSON responses; no formatting, charting or export
// happens here.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/cache"
	"github.com/cms-analytics-server/internal/domain"
	"github.com/cms-analytics-server/internal/middleware"
	"github.com/cms-analytics-server/internal/normalize"
	"github.com/cms-analytics-server/internal/service"
	"github.com/cms-analytics-server/internal/store"
	"github.com/cms-analytics-server/pkg/cms"
)

// Server represents the HTTP server
type Server struct {
	cfg        *domain.Config
	logger     *logrus.Logger
	router     *gin.Engine
	server     *http.Server
	analytics  *service.AnalyticsService
	normalizer *normalize.Normalizer
	snapshots  store.Store
	cache      *cache.SnapshotCache
	fetcher    *cms.Client
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, logger *logrus.Logger, snapshots store.Store, snapshotCache *cache.SnapshotCache, fetcher *cms.Client) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RateLimit(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst))

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		router:     router,
		analytics:  service.NewAnalyticsService(logger, cfg.Analytics),
		normalizer: normalize.NewNormalizer(logger),
		snapshots:  snapshots,
		cache:      snapshotCache,
		fetcher:    fetcher,
	}

	s.setupRoutes()
	return s
}

// Router exposes the configured engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analytics", s.handleAnalytics)
		v1.POST("/datasets/refresh", s.handleDatasetRefresh)
		v1.GET("/snapshots", s.handleListSnapshots)
		v1.GET("/providers/:id", s.handleGetProvider)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"cached":    s.cache.Len(),
	})
}
