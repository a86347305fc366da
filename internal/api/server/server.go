package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-marketplace-ledger/internal/api/middleware"
	apierrors "github.com/feral-file/ff-marketplace-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-marketplace-ledger/internal/ingestor"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/store"
)

const (
	SERVICE_NAME         = "ff-marketplace-ledger"
	HEALTH_CHECK_TIMEOUT = 3 * time.Second
)

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Ingestors []ingestor.Status `json:"ingestors"`
}

// Server is the ops server exposing health and ingestor status
type Server struct {
	config     Config
	store      store.Store
	ingestors  []ingestor.Ingestor
	router     *gin.Engine
	httpServer *http.Server
}

// New creates a new ops server
func New(cfg Config, store store.Store, ingestors ...ingestor.Ingestor) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:    cfg,
		store:     store,
		ingestors: ingestors,
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	router.GET("/health", s.health)
	router.GET("/status", s.status)
	router.GET("/status/:network", s.networkStatus)

	s.router = router
	return s
}

// Handler returns the http handler serving the ops routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting ops server", zap.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down ops server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), HEALTH_CHECK_TIMEOUT)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, apierrors.NewDatabaseError("Database unreachable", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": SERVICE_NAME,
	})
}

func (s *Server) status(c *gin.Context) {
	statuses := make([]ingestor.Status, 0, len(s.ingestors))
	for _, ing := range s.ingestors {
		statuses = append(statuses, ing.Status())
	}

	c.JSON(http.StatusOK, StatusResponse{Ingestors: statuses})
}

func (s *Server) networkStatus(c *gin.Context) {
	network := c.Param("network")
	for _, ing := range s.ingestors {
		if status := ing.Status(); status.Network == network {
			c.JSON(http.StatusOK, status)
			return
		}
	}

	c.JSON(http.StatusNotFound, apierrors.NewNotFoundError("Unknown network", network))
}
