package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	log "github.com/fleetflow/freight-ai/internal/logging"
)

// NewRouter builds the gin engine with all v1 routes registered.
func NewRouter(h *Handler, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	v1.Use(RequestSizeLimitMiddleware(DefaultMaxRequestSize))
	{
		v1.POST("/generate", h.Generate)
		v1.POST("/generate/batch", h.GenerateBatch)
		v1.GET("/status", h.Status)
		v1.GET("/health", h.Health)
		v1.DELETE("/cache", h.ClearCache)
		v1.GET("/usage", h.Usage)
	}
	return r
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	srv *http.Server
}

// NewServer binds the router to port.
func NewServer(router *gin.Engine, port int) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Infof("api: listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
