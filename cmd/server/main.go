package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solarrev/solarrev-backend/internal/api"
	"github.com/solarrev/solarrev-backend/internal/config"
	"github.com/solarrev/solarrev-backend/internal/database"
	"github.com/solarrev/solarrev-backend/internal/elevation"
	"github.com/solarrev/solarrev-backend/internal/logging"
	"github.com/solarrev/solarrev-backend/internal/middleware"
	"github.com/solarrev/solarrev-backend/internal/observability"
	"github.com/solarrev/solarrev-backend/internal/repository"
	"github.com/solarrev/solarrev-backend/internal/service"
	"github.com/solarrev/solarrev-backend/internal/terrain"
)

func main() {
	// 加载配置
	cfg := config.Load()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Dir: cfg.LogDir})
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to register metrics", logging.Err(err))
		os.Exit(1)
	}

	e := cfg.Elevation
	sourceOpts := []elevation.SourceOption{
		elevation.WithLogger(log.With(logging.String("component", "elevation"))),
		elevation.WithRecorder(metrics),
	}

	// 初始化高程缓存
	var cache *repository.ElevationRepository
	if e.CacheEnabled {
		if err := database.Init(ctx, database.Config{Path: cfg.DBPath, Logger: log}); err != nil {
			log.Error(ctx, "failed to initialize database", logging.Err(err))
			os.Exit(1)
		}
		defer database.Close()

		cache = repository.NewElevationRepository(database.GetDB(), e.CacheTTL)
		if removed, err := cache.Purge(ctx, e.CacheTTL); err != nil {
			log.Warn(ctx, "elevation cache purge failed", logging.Err(err))
		} else if removed > 0 {
			log.Info(ctx, "purged stale elevations", logging.Any("removed", removed))
		}
		sourceOpts = append(sourceOpts, elevation.WithCache(cache))
	}

	source := elevation.NewSource(elevation.Config{
		APIURL:  e.APIURL,
		Timeout: e.Timeout,
		Fetch: elevation.FetchOptions{
			BatchSize:      e.BatchSize,
			MaxConcurrency: e.MaxConcurrency,
			MaxRetries:     e.MaxRetries,
			BackoffBase:    e.BackoffBase,
			MaxBackoff:     e.MaxBackoff,
		},
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
	}, sourceOpts...)

	analyzer := terrain.NewAnalyzer(terrain.Thresholds{
		FlatMaxStdDev:     cfg.Terrain.FlatMaxStdDev,
		ModerateMaxStdDev: cfg.Terrain.ModerateMaxStdDev,
		UsableMaxSlopeDeg: cfg.Terrain.UsableMaxSlopeDeg,
	})

	limiter := middleware.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow)
	defer limiter.Stop()

	// 初始化路由
	deps := api.Deps{
		Config:           cfg,
		Logger:           log,
		Metrics:          metrics,
		RateLimiter:      limiter,
		AreaService:      service.NewAreaService(source, analyzer, cfg.Terrain.GridSpacingM, log),
		ElevationService: service.NewElevationService(source),
	}
	if cache != nil {
		deps.Cache = cache
	}
	router := api.SetupRouter(deps)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AnalysisTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 启动服务器
	go func() {
		log.Info(ctx, "server starting", logging.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server failed", logging.Err(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.AnalysisTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "graceful shutdown failed", logging.Err(err))
	}
	if n := source.OpenSessions(); n > 0 {
		log.Warn(ctx, "elevation sessions still open at exit", logging.Int("sessions", int(n)))
	}
}
