package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureaudocs/filedepot-backend/internal/cron"
	"github.com/bureaudocs/filedepot-backend/internal/maintenance"
	"github.com/bureaudocs/filedepot-backend/internal/postprocess"
	"github.com/bureaudocs/filedepot-backend/internal/tokens"
	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	"github.com/bureaudocs/filedepot-backend/pkg/config"
	"github.com/bureaudocs/filedepot-backend/pkg/db"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
	"github.com/bureaudocs/filedepot-backend/pkg/metrics"
	"github.com/bureaudocs/filedepot-backend/pkg/migrate"
	"github.com/bureaudocs/filedepot-backend/pkg/redis"
	"github.com/bureaudocs/filedepot-backend/pkg/storage/disk"
)

const lockKeyFormat = "fd:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	blobStore, err := disk.New(cfg.Storage.UploadRoot)
	if err != nil {
		logg.Error(context.Background(), "failed to open upload root", err)
		os.Exit(1)
	}

	tokenService, err := tokens.NewService(tokens.NewRepository(dbClient.DB()), cfg.Tokens.SigningSecret, cfg.Tokens.MaxAge)
	if err != nil {
		logg.Error(context.Background(), "failed to create token service", err)
		os.Exit(1)
	}

	uploadRepo := uploads.NewRepository(dbClient.DB())
	uploadService, err := uploads.NewService(uploads.ServiceParams{
		Repo:                uploadRepo,
		Tokens:              tokenService,
		Blobs:               blobStore,
		PathRegistry:        uploads.NewPathRegistry(),
		AllowedExtensions:   cfg.Uploads.AllowedExtensionSet(),
		MimetypeValidation:  cfg.FeatureFlags.MimetypeValidation,
		TempDir:             cfg.Storage.TempDir,
		ExportExpirationAge: cfg.Uploads.ExportExpirationAge,
		DeletedMaxAge:       cfg.Uploads.DeletedUploadMaxAge,
		BaseURL:             cfg.API.BaseURL,
		MaxUploadBytes:      int64(cfg.Uploads.MaxUploadMB) << 20,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create upload service", err)
		os.Exit(1)
	}

	registry := postprocess.NewRegistry(
		postprocess.NewConvertProcessor(uploadService, cfg.PostProcess.ScratchDir,
			postprocess.ImageConverter{},
			postprocess.OfficeConverter{Binary: cfg.PostProcess.ConverterBinary, Timeout: cfg.PostProcess.ConverterTimeout},
		),
		postprocess.NewMergeProcessor(uploadService, cfg.PostProcess.ScratchDir),
	)
	postProcessService, err := postprocess.NewService(registry, postprocess.NewRepository(dbClient.DB()), uploadService)
	if err != nil {
		logg.Error(context.Background(), "failed to create post-process service", err)
		os.Exit(1)
	}

	maintenanceService, err := maintenance.NewService(
		maintenance.NewRepository(dbClient.DB()),
		maintenance.NewOrphanFinder(uploadRepo, blobStore, cfg.Maintenance.SafetyMargin, cfg.Maintenance.BatchSize, cfg.Maintenance.WorkerCount),
		maintenance.NewChecksumValidator(uploadRepo, blobStore),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance service", err)
		os.Exit(1)
	}

	jobs, err := buildJobs(cfg, logg, uploadService, tokenService, postProcessService, maintenanceService)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	go serveMetrics(ctx, cfg.App.Port, logg)

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(
	cfg *config.Config,
	logg *logger.Logger,
	uploadService *uploads.Service,
	tokenService tokens.Service,
	postProcessService *postprocess.Service,
	maintenanceService *maintenance.Service,
) ([]cron.Job, error) {
	tempCleanup, err := cron.NewTempUploadCleanupJob(cron.TempUploadCleanupJobParams{
		Logger:  logg,
		Uploads: uploadService,
		MaxAge:  cfg.Uploads.TempUploadMaxAge,
	})
	if err != nil {
		return nil, err
	}
	deletedCleanup, err := cron.NewDeletedUploadCleanupJob(cron.DeletedUploadCleanupJobParams{
		Logger:  logg,
		Uploads: uploadService,
	})
	if err != nil {
		return nil, err
	}
	tokenSweep, err := cron.NewTokenSweepJob(cron.TokenSweepJobParams{
		Logger: logg,
		Tokens: tokenService,
	})
	if err != nil {
		return nil, err
	}
	asyncAdvance, err := cron.NewAsyncAdvanceJob(cron.AsyncAdvanceJobParams{
		Logger:   logg,
		Pipeline: postProcessService,
	})
	if err != nil {
		return nil, err
	}
	maintenanceJob, err := cron.NewMaintenanceJob(cron.MaintenanceJobParams{
		Logger:      logg,
		Maintenance: maintenanceService,
	})
	if err != nil {
		return nil, err
	}

	return []cron.Job{tempCleanup, deletedCleanup, tokenSweep, asyncAdvance, maintenanceJob}, nil
}

func serveMetrics(ctx context.Context, port string, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Warn(logg.WithField(ctx, "addr", server.Addr), "metrics server stopped")
	}
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
