package cron

import (
	"context"
	"fmt"

	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

const defaultAdvanceBatch = 20

type asyncAdvancer interface {
	AdvancePending(ctx context.Context, limit int) (int, error)
}

// AsyncAdvanceJobParams configure the queued post-processing advancer.
type AsyncAdvanceJobParams struct {
	Logger    *logger.Logger
	Pipeline  asyncAdvancer
	BatchSize int
}

// NewAsyncAdvanceJob executes queued post-processing jobs.
func NewAsyncAdvanceJob(params AsyncAdvanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Pipeline == nil {
		return nil, fmt.Errorf("pipeline service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAdvanceBatch
	}
	return &asyncAdvanceJob{logg: params.Logger, pipeline: params.Pipeline, batch: batch}, nil
}

type asyncAdvanceJob struct {
	logg     *logger.Logger
	pipeline asyncAdvancer
	batch    int
}

func (j *asyncAdvanceJob) Name() string { return "async-post-process-advance" }

func (j *asyncAdvanceJob) Run(ctx context.Context) error {
	advanced, err := j.pipeline.AdvancePending(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("advance async jobs: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "advanced", advanced)
	j.logg.Info(logCtx, "async post-processing advance complete")
	return nil
}
