// Package server wires the tracer's components together: span store,
// tracker, reconstructor, exporters, and the HTTP/WebSocket query surface.
package server

import (
	"context"
	"net/http"
	"time"

	apihttp "github.com/fnscope/fnscope/internal/api/http"
	"github.com/fnscope/fnscope/internal/api/middleware"
	"github.com/fnscope/fnscope/internal/export"
	"github.com/fnscope/fnscope/internal/infrastructure/config"
	"github.com/fnscope/fnscope/internal/infrastructure/logging"
	"github.com/fnscope/fnscope/internal/infrastructure/monitoring"
	"github.com/fnscope/fnscope/internal/query"
	"github.com/fnscope/fnscope/internal/store"
	"github.com/fnscope/fnscope/internal/trace"
	"github.com/fnscope/fnscope/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server hosts the query surface over one span store.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	router   *gin.Engine
	httpSrv  *http.Server
	store    *store.Store
	tracker  *trace.Tracker
	appender *export.Appender
}

// New assembles a server from configuration.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	metrics := monitoring.NewMetrics(nil)

	spanStore := store.New(
		store.Config{
			MaxSpans:         cfg.Store.MaxSpans,
			CleanupThreshold: cfg.Store.CleanupThreshold,
		},
		store.WithLogger(logger.Logger),
		store.WithRecorder(metrics),
	)

	tracker := trace.NewTracker(spanStore, trace.WithLogger(logger.Logger))
	recon := query.New(spanStore)

	var appender *export.Appender
	if cfg.Export.Path != "" {
		a, err := export.NewAppender(cfg.Export.Path, cfg.Export.RotateBytes, cfg.Export.Compress, logger.Logger)
		if err != nil {
			return nil, err
		}
		appender = a
		spanStore.Subscribe(appender.Append)
		logger.Info("span log enabled", zap.String("path", cfg.Export.Path))
	}

	if cfg.Logging.Development {
		console := export.NewConsole(logger.Logger)
		spanStore.Subscribe(console.Export)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(spanStore, recon, logger.Logger)
	wsHandler := ws.NewHandler(spanStore, recon, logger.Logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/spans", handlers.ListSpans)
	router.GET("/spans/stats", handlers.SpanStats)
	router.DELETE("/spans", handlers.ClearSpans)
	router.GET("/traces", handlers.ListTraces)
	router.GET("/traces/:id/tree", handlers.CallTree)
	router.GET("/traces/:id/render", handlers.RenderTrace)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{
		cfg:      cfg,
		logger:   logger,
		router:   router,
		store:    spanStore,
		tracker:  tracker,
		appender: appender,
	}, nil
}

// Tracker returns the engine handle for in-process instrumentation.
func (s *Server) Tracker() *trace.Tracker {
	return s.tracker
}

// Store returns the span store.
func (s *Server) Store() *store.Store {
	return s.store
}

// Router returns the HTTP handler, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	s.logger.Info("query surface listening", zap.String("addr", addr))

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully and closes exporters.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	if s.appender != nil {
		if err := s.appender.Close(); err != nil {
			s.logger.Warn("closing span log", zap.Error(err))
		}
	}
	return nil
}
