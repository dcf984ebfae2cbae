package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

type runRepository interface {
	Create(ctx context.Context, run *models.MaintenanceRun) error
	Find(ctx context.Context, taskID uuid.UUID) (*models.MaintenanceRun, error)
	Save(ctx context.Context, run *models.MaintenanceRun) error
	ListPending(ctx context.Context, limit int) ([]models.MaintenanceRun, error)
}

// Service owns maintenance run rows and drives the two jobs against
// them.
type Service struct {
	runs      runRepository
	orphans   *OrphanFinder
	checksums *ChecksumValidator
}

// NewService constructs the maintenance engine.
func NewService(runs runRepository, orphans *OrphanFinder, checksums *ChecksumValidator) (*Service, error) {
	if runs == nil {
		return nil, fmt.Errorf("run repository required")
	}
	if orphans == nil {
		return nil, fmt.Errorf("orphan finder required")
	}
	if checksums == nil {
		return nil, fmt.Errorf("checksum validator required")
	}
	return &Service{runs: runs, orphans: orphans, checksums: checksums}, nil
}

// ChecksumWindow optionally restricts a checksum run.
type ChecksumWindow struct {
	From *time.Time
	To   *time.Time
}

// CreateRun persists a PENDING run row for the given task.
func (s *Service) CreateRun(ctx context.Context, task enums.MaintenanceTask, parameters map[string]any) (*models.MaintenanceRun, error) {
	if !task.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown maintenance task %q", task))
	}
	if parameters == nil {
		parameters = map[string]any{}
	}
	run := &models.MaintenanceRun{
		TaskID:         uuid.New(),
		Task:           task,
		Status:         enums.MaintenanceStatusPending,
		ProgressInfo:   dbtypes.JSONMap{},
		Parameters:     dbtypes.JSONMap(parameters),
		DetailedReport: dbtypes.JSONMap{},
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist maintenance run")
	}
	return run, nil
}

// GetRun returns one run row.
func (s *Service) GetRun(ctx context.Context, taskID uuid.UUID) (*models.MaintenanceRun, error) {
	run, err := s.runs.Find(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "maintenance run not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch maintenance run")
	}
	return run, nil
}

// Execute moves the run to PROCESSING, runs its job and records the
// terminal state. Job failures land in the row, not in the return.
func (s *Service) Execute(ctx context.Context, run *models.MaintenanceRun) error {
	log := zerolog.Ctx(ctx).With().
		Str("task_id", run.TaskID.String()).
		Str("task", run.Task.String()).
		Logger()

	run.Status = enums.MaintenanceStatusProcessing
	if err := s.runs.Save(ctx, run); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist run status")
	}

	progress := func(percent float64, step string, info map[string]any) {
		run.ProgressPercentage = percent
		run.CurrentStep = step
		if info != nil {
			run.ProgressInfo = dbtypes.JSONMap(info)
		}
		if err := s.runs.Save(ctx, run); err != nil {
			log.Warn().Err(err).Msg("progress update failed")
		}
	}

	report, err := s.runJob(ctx, run, progress)
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	if err != nil {
		log.Error().Err(err).Msg("maintenance run failed")
		run.Status = enums.MaintenanceStatusError
		run.ErrorMessage = err.Error()
	} else {
		run.Status = enums.MaintenanceStatusDone
		run.DetailedReport = report
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist run result")
	}
	log.Info().
		Str("status", run.Status.String()).
		Msg("maintenance run finished")
	return nil
}

// ExecutePending runs queued maintenance rows, one at a time.
func (s *Service) ExecutePending(ctx context.Context, limit int) (int, error) {
	runs, err := s.runs.ListPending(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending runs")
	}
	executed := 0
	for i := range runs {
		if err := s.Execute(ctx, &runs[i]); err != nil {
			return executed, err
		}
		executed++
	}
	return executed, nil
}

func (s *Service) runJob(ctx context.Context, run *models.MaintenanceRun, progress ProgressFunc) (dbtypes.JSONMap, error) {
	switch run.Task {
	case enums.MaintenanceTaskOrphans:
		report, err := s.orphans.Run(ctx, progress)
		if err != nil {
			return nil, err
		}
		return toJSONMap(report)
	case enums.MaintenanceTaskChecksums:
		window := checksumWindow(run.Parameters)
		report, err := s.checksums.Run(ctx, window.From, window.To, progress)
		if err != nil {
			return nil, err
		}
		return toJSONMap(report)
	}
	return nil, fmt.Errorf("unknown maintenance task %q", run.Task)
}

func checksumWindow(params dbtypes.JSONMap) ChecksumWindow {
	window := ChecksumWindow{}
	if raw := params.GetString("from_date"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			window.From = &ts
		}
	}
	if raw := params.GetString("to_date"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			window.To = &ts
		}
	}
	return window
}

func toJSONMap(report any) (dbtypes.JSONMap, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	out := dbtypes.JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
