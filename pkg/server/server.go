package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soundprediction/robomem"
	"github.com/soundprediction/robomem/pkg/config"
	"github.com/soundprediction/robomem/pkg/driver"
	"github.com/soundprediction/robomem/pkg/server/handlers"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	memory   robomem.Memory
	store    driver.GraphStore
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStore exposes the store to the readiness check.
func WithStore(store driver.GraphStore) Option {
	return func(s *Server) { s.store = store }
}

// WithGatherer serves the collectors of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new server instance
func New(cfg *config.Config, memory robomem.Memory, opts ...Option) *Server {
	s := &Server{
		config: cfg,
		memory: memory,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the configured router. Setup must have been called.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(requestLogger(s.logger))
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.memory, s.store)
	memoryHandler := handlers.NewMemoryHandler(s.memory, s.logger)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	{
		obs := v1.Group("/observations")
		{
			obs.POST("", memoryHandler.Ingest)
			obs.POST("/flush", memoryHandler.Flush)
		}

		trajectory := v1.Group("/trajectory")
		{
			trajectory.GET("/latest", memoryHandler.Latest)
			trajectory.GET("/at", memoryHandler.NodeAt)
			trajectory.GET("/range", memoryHandler.NodesInRange)
			trajectory.GET("/nodes/:id", memoryHandler.GetRobotNode)
			trajectory.GET("/nodes/:id/edges", memoryHandler.EdgesFrom)
			trajectory.GET("/nodes/:id/annotations", memoryHandler.Annotations)
			trajectory.POST("/nodes/:id/annotations", memoryHandler.Annotate)
		}

		entities := v1.Group("/entities")
		{
			entities.GET("", memoryHandler.Entities)
			entities.GET("/near", memoryHandler.EntitiesNear)
			entities.GET("/:id", memoryHandler.GetEntity)
			entities.GET("/:id/history", memoryHandler.History)
		}

		v1.GET("/describe", memoryHandler.Describe)
		v1.GET("/snapshot", memoryHandler.Snapshot)
		v1.GET("/stats", memoryHandler.Stats)
		v1.GET("/verify", memoryHandler.Verify)
		v1.POST("/maintenance/decay", memoryHandler.Decay)
	}
}

// Start starts the server. It returns nil after Stop.
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.server.Shutdown(ctx)
}

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
