package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/api"
	"github.com/tendant/simple-resource/pkg/resourcestore/config"
	"github.com/tendant/simple-resource/pkg/resourcestore/obs/metrics"
	"github.com/tendant/simple-resource/pkg/resourcestore/obs/tracing"
	"github.com/tendant/simple-resource/pkg/resourcestore/presigned"
	"go.opentelemetry.io/otel"
)

func main() {
	// CONFIG_FILE points at an optional YAML file; the environment always wins.
	opt := config.WithEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		opt = config.WithFile(path)
	}
	cfg, err := config.Load(opt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n\n%s", err, config.Usage())
		os.Exit(1)
	}

	logger := cfg.Log.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	var reg prometheus.Registerer
	if cfg.Metrics.Enabled {
		m = metrics.New()
		reg = m.Registry()
	}

	store, err := cfg.BuildStore(ctx, logger, reg)
	if err != nil {
		logger.Error("Failed to build resource store", "error", err)
		os.Exit(1)
	}

	server := NewHTTPServer(store, cfg.Signer(), m, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Resource server starting", "port", cfg.Server.Port, "backend", cfg.Backend, "store", store.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", "error", err)
	}
	logger.Info("Server exiting")
}

// HTTPServer wires the resource API, signed downloads and observability
// endpoints onto one router.
type HTTPServer struct {
	store   *resourcestore.Store
	signer  *presigned.Signer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHTTPServer creates a new HTTP server wrapper. signer and m may be nil.
func NewHTTPServer(store *resourcestore.Store, signer *presigned.Signer, m *metrics.Metrics, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{store: store, signer: signer, metrics: m, logger: logger}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(tracing.Middleware(otel.GetTracerProvider()))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/healthz", s.handleHealth)

	handler := api.NewResourceHandler(s.store, s.logger)
	if s.signer != nil && s.signer.IsEnabled() {
		r.Handle(s.signer.PathPrefix()+"*", presigned.ValidateMiddleware(s.signer, s.logger, http.HandlerFunc(handler.Download)))
	}
	r.Mount("/", handler.Routes())

	return api.Chain(r,
		api.RequestIDMiddleware,
		api.LoggingMiddleware(s.logger),
		api.RecoveryMiddleware(s.logger),
	)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status": "ok",
		"store":  s.store.String(),
	})
}
