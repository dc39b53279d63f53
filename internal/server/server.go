// Package server is the HTTP surface of the engine: site content, the
// context admin API, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/craftercms/engine-sub000/internal/site"
)

// Request parameters that select a site.
const (
	HeaderSite = "X-Crafter-Site"
	QuerySite  = "crafterSite"
)

// Lifecycle is what the server needs from the lifecycle manager.
type Lifecycle interface {
	GetContext(ctx context.Context, name string, fallback bool) (*site.Context, error)
	ListContexts() []*site.Context
	RebuildContext(ctx context.Context, name string, fallback bool) (*site.Context, error)
	StartContextRebuild(name string, fallback bool, cb func(*site.Context, error)) error
	DestroyContext(name string) error
}

// Options configure a Server.
type Options struct {
	DefaultSite  string
	FallbackSite string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server routes requests to site contexts.
type Server struct {
	lc     Lifecycle
	opts   Options
	logger *zap.SugaredLogger
	router *gin.Engine
}

// New builds the router.
func New(lc Lifecycle, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{lc: lc, opts: opts, logger: opts.Logger.Sugar()}

	router := gin.New()
	router.Use(ginzap.Ginzap(opts.Logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(opts.Logger, true))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/1/site")
	{
		api.GET("/context/list", s.listContexts)
		api.GET("/context/status", s.contextStatus)
		api.POST("/context/rebuild", s.rebuildContext)
		api.POST("/context/destroy", s.destroyContext)
		api.POST("/cache/clear", s.resolveSite, s.clearCache)
	}
	s.routeContent(router)

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Infow("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
