// Package httpapi serves the operational HTTP endpoints that sit next to the
// TCP tag server: health, stats, load average and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tagserver/internal/microservices/http-api/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// ModeFor picks the gin mode; production drops the debug route banner
func ModeFor(production bool) string {
	if production {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

// NewServer wires the ops routes. peers and gatherer may be nil; without a
// gatherer /metrics is not registered.
func NewServer(addr string, inspector handler.ServerInspector, peers handler.PeerCounter, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	handler.NewOpsHandler(inspector, peers).RegisterRoutes(&router.RouterGroup)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until Shutdown; a clean shutdown returns nil
func (s *Server) ListenAndServe() error {
	s.logger.Info("http_server_started", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
