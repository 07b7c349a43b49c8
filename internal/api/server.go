// Package api serves analysis results and controls over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/analysis"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/config"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/secrets"
)

const progressBuffer = 64

// Server exposes one capture, the live secret set and the run manager
type Server struct {
	cfg     *config.Config
	logger  *logger.Logger
	manager *analysis.Manager
	secrets *secrets.Set
	source  capture.Source
	hub     *Hub

	// runs started over HTTP outlive the request that started them
	baseCtx context.Context
	stop    context.CancelFunc
}

func NewServer(cfg *config.Config, log *logger.Logger, mgr *analysis.Manager, set *secrets.Set, src capture.Source) *Server {
	if log == nil {
		log = logger.Nop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		logger:  log.WithComponent("api"),
		manager: mgr,
		secrets: set,
		source:  src,
		hub:     NewHub(progressBuffer),
		baseCtx: ctx,
		stop:    stop,
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware())
	r.Use(RateLimitMiddleware(s.cfg.Server.RateLimit))

	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/analyze", s.startAnalysis)
		v1.DELETE("/analyze", s.cancelAnalysis)
		v1.GET("/status", s.status)
		v1.GET("/progress", s.progress)

		v1.GET("/parameters/:location", s.parameters)
		v1.POST("/marks/:id", s.markParameter)
		v1.DELETE("/marks/:id", s.unmarkParameter)
		v1.DELETE("/marks", s.clearMarks)
		v1.GET("/cookies", s.cookies)
		v1.GET("/graph", s.graph)

		v1.GET("/secrets", s.listSecrets)
		v1.POST("/secrets", s.addSecret)
		v1.PUT("/secrets/:name", s.updateSecret)
		v1.DELETE("/secrets/:name", s.removeSecret)
	}
	return r
}

// ListenAndServe blocks until ctx is done, then drains connections and
// interrupts any in-flight run
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infow("Shutting down API server")
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Close interrupts runs started through the API
func (s *Server) Close() {
	s.manager.Cancel()
	s.stop()
}
