package cron

import (
	"context"
	"fmt"

	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

const defaultMaintenanceBatch = 1

type maintenanceRunner interface {
	ExecutePending(ctx context.Context, limit int) (int, error)
}

// MaintenanceJobParams configure the queued maintenance executor.
type MaintenanceJobParams struct {
	Logger      *logger.Logger
	Maintenance maintenanceRunner
	BatchSize   int
}

// NewMaintenanceJob executes queued maintenance runs.
func NewMaintenanceJob(params MaintenanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Maintenance == nil {
		return nil, fmt.Errorf("maintenance service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultMaintenanceBatch
	}
	return &maintenanceJob{logg: params.Logger, maintenance: params.Maintenance, batch: batch}, nil
}

type maintenanceJob struct {
	logg        *logger.Logger
	maintenance maintenanceRunner
	batch       int
}

func (j *maintenanceJob) Name() string { return "maintenance-runs" }

func (j *maintenanceJob) Run(ctx context.Context) error {
	executed, err := j.maintenance.ExecutePending(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("execute maintenance runs: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "executed", executed)
	j.logg.Info(logCtx, "maintenance runs complete")
	return nil
}
