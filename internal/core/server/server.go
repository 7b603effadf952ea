package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/croplens/indexcache/internal/core/config"
	"github.com/croplens/indexcache/internal/core/health"
	middleware "github.com/croplens/indexcache/internal/core/middleware"
	"github.com/croplens/indexcache/internal/core/router"
	"github.com/croplens/indexcache/internal/metrics"
)

// Deps collects everything the HTTP surface serves. Ready is optional
// and only mounted when the invalidation consumer runs.
type Deps struct {
	Handler router.IndexHandler
	Stats   router.StatsProvider
	Metrics *metrics.Provider
	Ready   health.ReadinessReporter
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if deps.Ready != nil {
		r.Get("/readyz", health.Readiness(deps.Ready))
	}
	r.Get("/metrics", deps.Metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/index", router.HandleIndex(logger, deps.Handler))
		r.Get("/area", router.HandleArea(logger))
		r.Get("/stats", router.HandleStats(logger, deps.Stats))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
