package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

const defaultTempUploadMaxAge = 15 * time.Minute

type uploadJanitor interface {
	CleanupTempUploads(ctx context.Context, maxAge time.Duration) (int, error)
	CleanupExpiredDeleted(ctx context.Context) (int, error)
}

// TempUploadCleanupJobParams configure the staged-upload sweeper.
type TempUploadCleanupJobParams struct {
	Logger  *logger.Logger
	Uploads uploadJanitor
	MaxAge  time.Duration
}

// NewTempUploadCleanupJob removes REQUESTED uploads that were never
// confirmed.
func NewTempUploadCleanupJob(params TempUploadCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Uploads == nil {
		return nil, fmt.Errorf("upload service required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultTempUploadMaxAge
	}
	return &tempUploadCleanupJob{
		logg:    params.Logger,
		uploads: params.Uploads,
		maxAge:  maxAge,
	}, nil
}

type tempUploadCleanupJob struct {
	logg    *logger.Logger
	uploads uploadJanitor
	maxAge  time.Duration
}

func (j *tempUploadCleanupJob) Name() string { return "temp-upload-cleanup" }

func (j *tempUploadCleanupJob) Run(ctx context.Context) error {
	removed, err := j.uploads.CleanupTempUploads(ctx, j.maxAge)
	if err != nil {
		return fmt.Errorf("temp upload cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"max_age": j.maxAge.String(),
		"removed": removed,
	})
	j.logg.Info(logCtx, "temp upload cleanup complete")
	return nil
}

// DeletedUploadCleanupJobParams configure the tombstone sweeper.
type DeletedUploadCleanupJobParams struct {
	Logger  *logger.Logger
	Uploads uploadJanitor
}

// NewDeletedUploadCleanupJob removes DELETED uploads whose retention
// expired.
func NewDeletedUploadCleanupJob(params DeletedUploadCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Uploads == nil {
		return nil, fmt.Errorf("upload service required")
	}
	return &deletedUploadCleanupJob{logg: params.Logger, uploads: params.Uploads}, nil
}

type deletedUploadCleanupJob struct {
	logg    *logger.Logger
	uploads uploadJanitor
}

func (j *deletedUploadCleanupJob) Name() string { return "deleted-upload-cleanup" }

func (j *deletedUploadCleanupJob) Run(ctx context.Context) error {
	removed, err := j.uploads.CleanupExpiredDeleted(ctx)
	if err != nil {
		return fmt.Errorf("deleted upload cleanup: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "removed", removed)
	j.logg.Info(logCtx, "deleted upload cleanup complete")
	return nil
}
