package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bureaudocs/filedepot-backend/api/responses"
	"github.com/bureaudocs/filedepot-backend/api/validators"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

type maintenanceService interface {
	CreateRun(ctx context.Context, task enums.MaintenanceTask, parameters map[string]any) (*models.MaintenanceRun, error)
	GetRun(ctx context.Context, taskID uuid.UUID) (*models.MaintenanceRun, error)
}

type maintenanceRunRequest struct {
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CreateMaintenanceRun schedules a maintenance task; the cron worker
// picks pending runs up off the request path.
func CreateMaintenanceRun(svc maintenanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := enums.ParseMaintenanceTask(chi.URLParam(r, "task"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown maintenance task"))
			return
		}

		var payload maintenanceRunRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		run, err := svc.CreateRun(r.Context(), task, payload.Parameters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, maintenanceRunResponse(run))
	}
}

// GetMaintenanceRun reports status, progress and findings for a run.
func GetMaintenanceRun(svc maintenanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := uuid.Parse(chi.URLParam(r, "task_id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid task id"))
			return
		}

		run, err := svc.GetRun(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, maintenanceRunResponse(run))
	}
}

func maintenanceRunResponse(run *models.MaintenanceRun) map[string]any {
	body := map[string]any{
		"task_id":             run.TaskID.String(),
		"task":                run.Task,
		"status":              run.Status,
		"progress_percentage": run.ProgressPercentage,
		"current_step":        run.CurrentStep,
		"progress_info":       map[string]any(run.ProgressInfo),
		"created_at":          run.CreatedAt,
	}
	if run.CompletedAt != nil {
		body["completed_at"] = run.CompletedAt
	}
	if run.ErrorMessage != "" {
		body["error_message"] = run.ErrorMessage
	}
	if len(run.DetailedReport) > 0 {
		body["detailed_report"] = map[string]any(run.DetailedReport)
	}
	return body
}
