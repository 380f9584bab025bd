package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	api "github.com/scrapegoat/backend/internal/api/http"
	"github.com/scrapegoat/backend/internal/api/middleware"
	"github.com/scrapegoat/backend/internal/builder"
	"github.com/scrapegoat/backend/internal/engine"
	"github.com/scrapegoat/backend/internal/fetch"
	"github.com/scrapegoat/backend/internal/infrastructure/config"
	"github.com/scrapegoat/backend/internal/infrastructure/logging"
	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
)

const (
	readHeaderTimeout = 10 * time.Second
	maxRequestBytes   = 16 << 20
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing ScrapeGoat server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("id_scheme", cfg.Builder.IDScheme),
		zap.String("output_dir", cfg.Output.Dir),
	)

	// Metrics first; every component records into them
	metrics := monitoring.NewMetrics()

	ids, err := builder.NewIDSource(cfg.Builder.IDScheme)
	if err != nil {
		return nil, fmt.Errorf("failed to create id source: %w", err)
	}

	gardener := builder.New(
		builder.WithIDSource(ids),
		builder.WithMaxBytes(cfg.Builder.MaxDocumentBytes),
		builder.WithLogger(logger.Component("builder")),
		builder.WithMetrics(metrics),
	)
	if cfg.Builder.SanitizeHTML {
		gardener = gardener.Sanitized()
	}
	sheepdog := fetch.New(fetch.Options{
		Timeout:           cfg.Fetch.Timeout,
		Retries:           cfg.Fetch.Retries,
		UserAgent:         cfg.Fetch.UserAgent,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		MaxBytes:          cfg.Builder.MaxDocumentBytes,
		Logger:            logger.Component("fetch"),
		Metrics:           metrics,
	})
	eng := engine.New(
		engine.WithLogger(logger.Component("engine")),
		engine.WithMetrics(metrics),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(limitBody(maxRequestBytes))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	if rps := cfg.RateLimit.GlobalRequestsPerSecond; rps > 0 {
		router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: rps,
			Burst:             2 * rps,
		}))
	}

	handlers := api.NewHandlers(eng, gardener, sheepdog, metrics, logger.Component("api"))
	handlers.AllowOrigins(cfg.Server.CORSOrigins)
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful shutdown failed", zap.Error(err))
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// limitBody caps request bodies; oversized JSON fails to bind.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
