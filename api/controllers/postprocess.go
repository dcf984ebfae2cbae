package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bureaudocs/filedepot-backend/api/responses"
	"github.com/bureaudocs/filedepot-backend/api/validators"
	"github.com/bureaudocs/filedepot-backend/internal/postprocess"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

type postProcessRunner interface {
	RunSync(ctx context.Context, input postprocess.RunInput) (map[string]postprocess.ActionOutcome, error)
	Enqueue(ctx context.Context, input postprocess.RunInput) (*models.PostProcessAsync, error)
	Progress(ctx context.Context, jobUUID uuid.UUID, wanted *enums.PostProcessAction) (*postprocess.ProgressOutput, error)
}

type postProcessRequest struct {
	FilesUUID          []uuid.UUID               `json:"files_uuid" validate:"required,min=1"`
	PostProcessActions []string                  `json:"post_process_actions" validate:"required,min=1"`
	PostProcessParams  map[string]map[string]any `json:"post_process_params,omitempty"`
	Async              bool                      `json:"async,omitempty"`
}

func (req postProcessRequest) toInput() (postprocess.RunInput, error) {
	actions := make([]enums.PostProcessAction, 0, len(req.PostProcessActions))
	for _, raw := range req.PostProcessActions {
		action, err := enums.ParsePostProcessAction(strings.TrimSpace(raw))
		if err != nil {
			return postprocess.RunInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid post_process_actions entry")
		}
		actions = append(actions, action)
	}

	params := make(map[string]postprocess.Params, len(req.PostProcessParams))
	for action, values := range req.PostProcessParams {
		params[action] = postprocess.Params(values)
	}

	return postprocess.RunInput{
		Files:   req.FilesUUID,
		Actions: actions,
		Params:  params,
	}, nil
}

// PostProcessing runs an ordered action list, inline or queued.
func PostProcessing(svc postProcessRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload postProcessRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if payload.Async {
			job, err := svc.Enqueue(r.Context(), input)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
				"job_uuid": job.UUID.String(),
				"status":   job.Status,
			})
			return
		}

		outcomes, err := svc.RunSync(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"results": outcomes})
	}
}

// PostProcessingProgress reports completion of an async job.
func PostProcessingProgress(svc postProcessRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobUUID, err := uuid.Parse(chi.URLParam(r, "job_uuid"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job uuid"))
			return
		}

		var wanted *enums.PostProcessAction
		if raw := strings.TrimSpace(r.URL.Query().Get("wanted_post_process")); raw != "" {
			action, err := enums.ParsePostProcessAction(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid wanted_post_process"))
				return
			}
			wanted = &action
		}

		progress, err := svc.Progress(r.Context(), jobUUID, wanted)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, progress)
	}
}
