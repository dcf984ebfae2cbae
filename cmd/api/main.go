package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/bureaudocs/filedepot-backend/api/controllers"
	"github.com/bureaudocs/filedepot-backend/api/routes"
	"github.com/bureaudocs/filedepot-backend/internal/maintenance"
	"github.com/bureaudocs/filedepot-backend/internal/postprocess"
	"github.com/bureaudocs/filedepot-backend/internal/tokens"
	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	"github.com/bureaudocs/filedepot-backend/pkg/config"
	"github.com/bureaudocs/filedepot-backend/pkg/db"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
	"github.com/bureaudocs/filedepot-backend/pkg/migrate"
	"github.com/bureaudocs/filedepot-backend/pkg/redis"
	"github.com/bureaudocs/filedepot-backend/pkg/storage/disk"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	pingers := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
		"storage":  blobStore,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, pingers, uploadService, postProcessService, maintenanceService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
