package postprocess

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

type jobRepository interface {
	CreateLineage(ctx context.Context, lineage *models.PostProcessing) error
	FindLineage(ctx context.Context, id uuid.UUID) (*models.PostProcessing, error)
	FindLineageByInput(ctx context.Context, id uuid.UUID) ([]models.PostProcessing, error)
	CreateAsync(ctx context.Context, job *models.PostProcessAsync) error
	FindAsync(ctx context.Context, id uuid.UUID) (*models.PostProcessAsync, error)
	SaveAsync(ctx context.Context, job *models.PostProcessAsync) error
	ListPendingAsync(ctx context.Context, limit int) ([]models.PostProcessAsync, error)
	FindAsyncByBaseInput(ctx context.Context, id uuid.UUID) (*models.PostProcessAsync, error)
}

// Service orchestrates post-processing runs, both inline and queued.
type Service struct {
	registry *Registry
	repo     jobRepository
	uploads  uploadStore
}

// NewService constructs the pipeline orchestrator.
func NewService(registry *Registry, repo jobRepository, uploads uploadStore) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("processor registry required")
	}
	if repo == nil {
		return nil, fmt.Errorf("job repository required")
	}
	if uploads == nil {
		return nil, fmt.Errorf("upload store required")
	}
	return &Service{registry: registry, repo: repo, uploads: uploads}, nil
}

// RunInput describes one pipeline run.
type RunInput struct {
	Files   []uuid.UUID
	Actions []enums.PostProcessAction
	Params  map[string]Params
}

func (in RunInput) validate() error {
	if len(in.Files) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "files_uuid must not be empty")
	}
	if len(in.Actions) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "post_process_actions must not be empty")
	}
	for _, action := range in.Actions {
		if !action.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown action %q", action))
		}
	}
	return nil
}

// ActionOutcome is the recorded result of one action in a run.
type ActionOutcome struct {
	Status   enums.ActionResultStatus `json:"status"`
	Uploads  []*models.Upload         `json:"upload_objects,omitempty"`
	Lineages []uuid.UUID              `json:"post_processing_objects,omitempty"`
	Errors   []string                 `json:"errors,omitempty"`
}

// RunSync executes the fold inline. The returned map carries one entry
// per action; an entry stays PENDING when an earlier action failed.
func (s *Service) RunSync(ctx context.Context, input RunInput) (map[string]ActionOutcome, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	state, err := s.loadInputs(ctx, input.Files)
	if err != nil {
		return nil, err
	}

	outcomes := make(map[string]ActionOutcome, len(input.Actions))
	for _, action := range input.Actions {
		outcomes[action.String()] = ActionOutcome{Status: enums.ActionResultPending}
	}

	for _, action := range input.Actions {
		result, err := s.runAction(ctx, action, state, input.Params[action.String()])
		if err != nil {
			outcomes[action.String()] = ActionOutcome{
				Status: enums.ActionResultFailed,
				Errors: []string{err.Error()},
			}
			return outcomes, err
		}
		outcomes[action.String()] = ActionOutcome{
			Status:   enums.ActionResultDone,
			Uploads:  result.Uploads,
			Lineages: lineageIDs(result.Lineages),
		}
		state = result.Uploads
	}
	return outcomes, nil
}

// Enqueue persists an async job in PENDING state for the advancer.
func (s *Service) Enqueue(ctx context.Context, input RunInput) (*models.PostProcessAsync, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	// fail fast on unknown inputs; execution happens later
	if _, err := s.loadInputs(ctx, input.Files); err != nil {
		return nil, err
	}

	actions := make([]any, 0, len(input.Actions))
	results := dbtypes.JSONMap{}
	for _, action := range input.Actions {
		actions = append(actions, action.String())
		results[action.String()] = map[string]any{
			models.AsyncResultStatus: enums.ActionResultPending.String(),
		}
	}
	baseInput := make([]any, 0, len(input.Files))
	for _, id := range input.Files {
		baseInput = append(baseInput, id.String())
	}
	params := map[string]any{}
	for action, p := range input.Params {
		params[action] = map[string]any(p)
	}

	job := &models.PostProcessAsync{
		UUID:   uuid.New(),
		Status: enums.AsyncJobStatusPending,
		Data: dbtypes.JSONMap{
			models.AsyncDataBaseInput: baseInput,
			models.AsyncDataActions:   actions,
			models.AsyncDataParams:    params,
		},
		Results: results,
	}
	if err := s.repo.CreateAsync(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist async job")
	}
	return job, nil
}

// AdvancePending executes queued jobs. Pipeline failures are captured
// into the job row, never returned to the scheduler.
func (s *Service) AdvancePending(ctx context.Context, limit int) (int, error) {
	jobs, err := s.repo.ListPendingAsync(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending jobs")
	}
	advanced := 0
	for i := range jobs {
		job := &jobs[i]
		s.executeJob(ctx, job)
		if err := s.repo.SaveAsync(ctx, job); err != nil {
			return advanced, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist job result")
		}
		advanced++
	}
	return advanced, nil
}

func (s *Service) executeJob(ctx context.Context, job *models.PostProcessAsync) {
	log := zerolog.Ctx(ctx).With().Str("job_uuid", job.UUID.String()).Logger()

	input, err := s.decodeJob(job)
	if err != nil {
		log.Error().Err(err).Msg("async job payload is unreadable")
		job.Status = enums.AsyncJobStatusFailed
		return
	}

	outcomes, runErr := s.RunSync(ctx, input)
	if outcomes == nil {
		// inputs disappeared between enqueue and execution
		outcomes = map[string]ActionOutcome{}
		for _, action := range input.Actions {
			outcomes[action.String()] = ActionOutcome{
				Status: enums.ActionResultFailed,
				Errors: []string{runErr.Error()},
			}
		}
	}

	results := dbtypes.JSONMap{}
	for action, outcome := range outcomes {
		entry := map[string]any{
			models.AsyncResultStatus: outcome.Status.String(),
		}
		if len(outcome.Uploads) > 0 {
			ids := make([]any, 0, len(outcome.Uploads))
			for _, upload := range outcome.Uploads {
				ids = append(ids, upload.UUID.String())
			}
			entry[models.AsyncResultUploads] = ids
		}
		if len(outcome.Lineages) > 0 {
			ids := make([]any, 0, len(outcome.Lineages))
			for _, id := range outcome.Lineages {
				ids = append(ids, id.String())
			}
			entry[models.AsyncResultPostProcessings] = ids
		}
		if len(outcome.Errors) > 0 {
			entry[models.AsyncResultErrors] = map[string]any{"messages": outcome.Errors}
		}
		results[action] = entry
	}
	job.Results = results

	if runErr != nil {
		log.Warn().Err(runErr).Msg("async job failed")
		job.Status = enums.AsyncJobStatusFailed
		return
	}
	job.Status = enums.AsyncJobStatusDone
}

func (s *Service) decodeJob(job *models.PostProcessAsync) (RunInput, error) {
	files, err := uuidSlice(job.Data[models.AsyncDataBaseInput])
	if err != nil {
		return RunInput{}, fmt.Errorf("decode base_input: %w", err)
	}
	rawActions := stringSlice(job.Data[models.AsyncDataActions])
	actions := make([]enums.PostProcessAction, 0, len(rawActions))
	for _, raw := range rawActions {
		action, err := enums.ParsePostProcessAction(raw)
		if err != nil {
			return RunInput{}, err
		}
		actions = append(actions, action)
	}

	params := map[string]Params{}
	if rawParams, ok := job.Data[models.AsyncDataParams].(map[string]any); ok {
		for action, value := range rawParams {
			if m, ok := value.(map[string]any); ok {
				params[action] = Params(m)
			}
		}
	}
	return RunInput{Files: files, Actions: actions, Params: params}, nil
}

func (s *Service) runAction(ctx context.Context, action enums.PostProcessAction, state []*models.Upload, params Params) (*ActionResult, error) {
	processor, err := s.registry.Lookup(action)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve action")
	}
	result, err := processor.Process(ctx, state, params)
	if err != nil {
		return nil, err
	}
	for _, lineage := range result.Lineages {
		if err := s.repo.CreateLineage(ctx, lineage); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist lineage")
		}
	}
	return result, nil
}

func (s *Service) loadInputs(ctx context.Context, ids []uuid.UUID) ([]*models.Upload, error) {
	uploads := make([]*models.Upload, 0, len(ids))
	for _, id := range ids {
		upload, err := s.uploads.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if upload.Status != enums.UploadStatusUploaded {
			return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound,
				fmt.Sprintf("upload %s is not available", id))
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func lineageIDs(lineages []*models.PostProcessing) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lineages))
	for _, lineage := range lineages {
		ids = append(ids, lineage.UUID)
	}
	return ids
}

func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func uuidSlice(value any) ([]uuid.UUID, error) {
	raw := stringSlice(value)
	out := make([]uuid.UUID, 0, len(raw))
	for _, item := range raw {
		id, err := uuid.Parse(item)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
