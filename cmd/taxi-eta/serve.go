package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/richxcame/taxi-eta/internal/eta"
	"github.com/richxcame/taxi-eta/internal/supervisor"
	"github.com/richxcame/taxi-eta/pkg/common"
	"github.com/richxcame/taxi-eta/pkg/config"
	"github.com/richxcame/taxi-eta/pkg/database"
	pkgerrors "github.com/richxcame/taxi-eta/pkg/errors"
	"github.com/richxcame/taxi-eta/pkg/logger"
	"github.com/richxcame/taxi-eta/pkg/middleware"
	taxiredis "github.com/richxcame/taxi-eta/pkg/redis"
)

const (
	serviceName    = "taxi-eta"
	serviceVersion = "1.0.0"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction HTTP API, bootstrapping and supervising the model lifecycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return &exitConfigError{cause: err}
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		return err
	}
	defer logger.Sync()

	// Database and Redis back the read-only analytics surface only — a
	// failure to connect here must never stop predictions from serving
	// (§1, §5: neither store is on the prediction hot path).
	dbPool, err := database.NewPostgresPool(&cfg.Database, cfg.Timeout.DatabaseQueryTimeout)
	if err != nil {
		logger.Warn("database unavailable, analytics persistence disabled", zap.Error(err))
		dbPool = nil
	} else {
		defer database.Close(dbPool)
	}

	redisClient, err := taxiredis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, historical-duration cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	sentryConfig := pkgerrors.DefaultSentryConfig()
	sentryConfig.ServerName = serviceName
	if err := pkgerrors.InitSentry(sentryConfig); err != nil {
		logger.Warn("sentry not configured, continuing without error tracking", zap.Error(err))
	} else {
		defer pkgerrors.Flush(2 * time.Second)
		logger.Info("sentry error tracking initialized")
	}

	scanner := eta.NewScanner(cfg.Registry.Root, cfg.Registry.ExperimentID, cfg.Registry.ModelName, logger.Get())
	builder := eta.NewFeatureBuilder(eta.BoundingBox{
		MinLat: cfg.BoundingBox.MinLat, MinLon: cfg.BoundingBox.MinLon,
		MaxLat: cfg.BoundingBox.MaxLat, MaxLon: cfg.BoundingBox.MaxLon,
	})
	breakerSettings := eta.BreakerSettingsFromConfig(cfg.Resilience.CircuitBreaker)
	service := eta.NewService(scanner, builder, breakerSettings, logger.Get())
	repo := eta.NewRepository(dbPool, redisClient)
	registryMetrics := eta.NewRegistryMetrics(serviceName)
	handler := eta.NewHandler(service, repo, registryMetrics)

	supervisorMetrics := supervisor.NewSupervisorMetrics(serviceName)
	super := supervisor.New(cfg, service, scanner, supervisorMetrics, logger.Get())

	if err := super.Bootstrap(); err != nil {
		return err
	}
	if err := super.LoadInitialModel(); err != nil {
		return err
	}

	rootCtx, cancelSubprocesses := context.WithCancel(context.Background())
	defer cancelSubprocesses()
	super.StartSubprocesses(rootCtx)
	defer super.Shutdown()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(&cfg.Timeout))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS())
	router.Use(middleware.SanitizeRequest())
	router.Use(middleware.ErrorHandler())

	api := router.Group("/api/v1")
	{
		api.POST("/predict", handler.Predict)
		api.GET("/health", handler.Health)
		api.GET("/health/model", handler.ModelInfo)

		etaGroup := api.Group("/eta")
		{
			etaGroup.GET("/registry/scan", handler.ScanRegistry)

			analytics := etaGroup.Group("/analytics")
			{
				analytics.GET("/predictions", handler.PredictionHistory)
				analytics.GET("/accuracy", handler.AccuracyMetrics)
			}
		}
	}
	router.GET("/healthz", common.HealthCheck(serviceName, serviceVersion))
	router.GET("/health/live", common.LivenessProbe(serviceName, serviceVersion))

	readinessChecks := make(map[string]func() error)
	if dbPool != nil {
		readinessChecks["database"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.DatabaseQueryTimeoutDuration())
			defer cancel()
			return dbPool.Ping(ctx)
		}
	}
	if redisClient != nil {
		readinessChecks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.RedisOperationTimeoutDuration())
			defer cancel()
			return redisClient.Ping(ctx).Err()
		}
	}
	router.GET("/health/ready", common.ReadinessProbe(serviceName, serviceVersion, readinessChecks))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("taxi-eta service starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down taxi-eta service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Supervisor.ShutdownGraceSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("taxi-eta service stopped")
	return nil
}
