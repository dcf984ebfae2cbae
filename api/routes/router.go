package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bureaudocs/filedepot-backend/api/controllers"
	"github.com/bureaudocs/filedepot-backend/api/middleware"
	"github.com/bureaudocs/filedepot-backend/internal/maintenance"
	"github.com/bureaudocs/filedepot-backend/internal/postprocess"
	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	"github.com/bureaudocs/filedepot-backend/pkg/config"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
	"github.com/bureaudocs/filedepot-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	pingers map[string]controllers.Pinger,
	uploadService *uploads.Service,
	postProcessService *postprocess.Service,
	maintenanceService *maintenance.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.DomainList),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	// Streaming reads carry a token in the path and are exempt from
	// the server-to-server key.
	r.With(middleware.FrameAncestors(cfg.API.DomainList)).
		Get("/file/{token}", controllers.ServeFile(uploadService, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.API.SharedSecret, logg))

		uploadLimit, uploadWindow, err := cfg.Uploads.UploadLimitRate()
		if err != nil {
			uploadLimit, uploadWindow = 0, time.Minute
			if logg != nil {
				ctx := logg.WithField(context.Background(), "upload_limit", cfg.Uploads.UploadLimit)
				logg.Warn(ctx, "invalid upload limit, throttling disabled")
			}
		}
		r.With(middleware.UploadThrottle(uploadLimit, uploadWindow, redisClient, logg)).
			Post("/request-upload", controllers.RequestUpload(uploadService, logg))

		r.Post("/confirm-upload/{token}", controllers.ConfirmUpload(uploadService, logg))
		r.Post("/declare-file-as-infected", controllers.DeclareInfected(uploadService, logg))
		r.Post("/declare-files-as-deleted", controllers.DeclareDeleted(uploadService, logg))

		r.Post("/read-token/{uuid}", controllers.ReadToken(uploadService, postProcessService, cfg.API.BaseURL, logg))
		r.Post("/write-token/{uuid}", controllers.WriteToken(uploadService, logg))
		r.Post("/read-tokens", controllers.ReadTokens(uploadService, postProcessService, cfg.API.BaseURL, logg))

		r.Get("/metadata/{token}", controllers.FileMetadata(uploadService, logg))
		r.Post("/change-metadata/{token}", controllers.ChangeMetadata(uploadService, logg))

		r.Post("/rotate-image/{token}", controllers.RotateImage(uploadService, logg))
		r.Post("/save-editor/{token}", controllers.SaveEditor(uploadService, logg))

		r.Post("/duplicate", controllers.Duplicate(uploadService, logg))

		r.Post("/post-processing", controllers.PostProcessing(postProcessService, logg))
		r.Get("/post-processing/{job_uuid}/progress", controllers.PostProcessingProgress(postProcessService, logg))

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/{task}", controllers.CreateMaintenanceRun(maintenanceService, logg))
			r.Get("/runs/{task_id}", controllers.GetMaintenanceRun(maintenanceService, logg))
		})
	})

	return r
}
