// Package server builds the HTTP surface: engine construction, common
// middleware, and graceful lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/callsight/callsight/internal/config"
	"github.com/callsight/callsight/internal/logger"
)

// New builds a gin engine with recovery, request logging, and CORS applied.
func New(cfg config.ServiceConfig, log logger.Logger) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	engine.Use(CORS())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Name,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	return engine
}

// Server wraps http.Server with the configured timeouts.
type Server struct {
	httpServer *http.Server
	cfg        config.ServiceConfig
	log        logger.Logger
}

// NewServer binds the engine to the configured port.
func NewServer(cfg config.ServiceConfig, engine *gin.Engine, log logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			Handler:     engine,
			ReadTimeout: cfg.ReadTimeout,
			// WriteTimeout stays unset: live event streams hold their
			// response open for the length of a call.
		},
		cfg: cfg,
		log: log,
	}
}

// Start serves until the listener closes. It returns nil on graceful
// shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening",
		logger.String("service", s.cfg.Name),
		logger.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.log.Info("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
