package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/croplens/indexcache/internal/cache/redisstore"
	"github.com/croplens/indexcache/internal/cache/regionindex"
	"github.com/croplens/indexcache/internal/cache/resultcache"
	"github.com/croplens/indexcache/internal/core/config"
	"github.com/croplens/indexcache/internal/core/health"
	"github.com/croplens/indexcache/internal/core/httpclient"
	"github.com/croplens/indexcache/internal/core/observability"
	"github.com/croplens/indexcache/internal/core/server"
	"github.com/croplens/indexcache/internal/index"
	"github.com/croplens/indexcache/internal/invalidation/kafkaconsumer"
	"github.com/croplens/indexcache/internal/logger"
	"github.com/croplens/indexcache/internal/metrics"
	"github.com/croplens/indexcache/internal/pipeline"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "indexcached",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer())
	observability.ExposeBuildInfo(Version)

	appLog.Info("starting indexcached",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr,
		"invalidation", cfg.Invalidation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		appLog.Error("redis unavailable", "addr", cfg.RedisAddr, "err", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	cache := resultcache.New(store, appLog,
		resultcache.WithTTL(cfg.CacheTTL),
		resultcache.WithL1Size(cfg.CacheL1Size),
	)
	regions := regionindex.New(store, cfg.RegionIndexRes)

	var src index.SceneSource
	if catalogURL := os.Getenv("IMAGERY_CATALOG_URL"); catalogURL != "" {
		src, err = index.NewCatalogSource(catalogURL, httpclient.NewOutbound())
		if err != nil {
			appLog.Error("catalog setup failed", "url", catalogURL, "err", err)
			return 1
		}
		appLog.Info("using imagery catalog", "url", catalogURL)
	} else {
		src = &index.SyntheticSource{Size: cfg.SceneSize}
		appLog.Info("using synthetic imagery", "size", cfg.SceneSize)
	}

	producer := index.NewExtractor(src, cfg.TileBaseURL, cfg.SceneLookback)
	engine := pipeline.New(appLog, cache, regions, producer, cfg.CacheOpTimeout)

	var ready health.ReadinessReporter
	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromEnv(), appLog, cache, regions)
		ready = consumer
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer exited", "err", err)
			}
		}()
	}

	deps := server.Deps{
		Handler: engine,
		Stats:   engine,
		Metrics: p,
		Ready:   ready,
	}
	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
