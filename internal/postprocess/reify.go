package postprocess

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

// ReifyState tells the caller how to answer a read-token request that
// named a post-processing selector.
type ReifyState int

const (
	// ReifyResolved means Upload points at the requested output.
	ReifyResolved ReifyState = iota
	// ReifyPending means the relevant async job has not run yet.
	ReifyPending
	// ReifyFailed means the relevant async job recorded errors.
	ReifyFailed
)

// ReifyOutcome is the resolution of a wanted_post_process selector.
type ReifyOutcome struct {
	State          ReifyState
	Upload         *models.Upload
	Job            *models.PostProcessAsync
	ActionStatuses map[string]string
	Errors         map[string]any
}

const maxLineageDepth = 16

// Reify maps an upload plus a wanted_post_process selector onto the
// upload a READ token should be issued for. wanted == nil means "the
// furthest output available".
func (s *Service) Reify(ctx context.Context, uploadUUID uuid.UUID, wanted *enums.PostProcessAction) (*ReifyOutcome, error) {
	if wanted != nil && *wanted == enums.PostProcessActionOriginal {
		upload, err := s.uploads.Get(ctx, uploadUUID)
		if err != nil {
			return nil, err
		}
		return &ReifyOutcome{State: ReifyResolved, Upload: upload}, nil
	}

	job, err := s.repo.FindAsyncByBaseInput(ctx, uploadUUID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search async jobs")
	}
	if job != nil {
		return s.reifyFromJob(ctx, job, uploadUUID, wanted)
	}
	return s.reifyFromLineage(ctx, uploadUUID, wanted)
}

func (s *Service) reifyFromJob(ctx context.Context, job *models.PostProcessAsync, uploadUUID uuid.UUID, wanted *enums.PostProcessAction) (*ReifyOutcome, error) {
	switch job.Status {
	case enums.AsyncJobStatusPending:
		return &ReifyOutcome{
			State:          ReifyPending,
			Job:            job,
			ActionStatuses: actionStatuses(job),
		}, nil
	case enums.AsyncJobStatusFailed:
		return &ReifyOutcome{
			State:          ReifyFailed,
			Job:            job,
			ActionStatuses: actionStatuses(job),
			Errors:         actionErrors(job),
		}, nil
	}

	target := s.targetAction(job, wanted)
	if target == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound,
			fmt.Sprintf("job has no %s output", wantedName(wanted)))
	}
	outputID, err := s.outputForAction(ctx, job, target, uploadUUID)
	if err != nil {
		return nil, err
	}
	upload, err := s.uploads.Get(ctx, outputID)
	if err != nil {
		return nil, err
	}
	return &ReifyOutcome{State: ReifyResolved, Upload: upload, Job: job}, nil
}

// targetAction picks which action's output the caller wants; without a
// selector the last action of the job wins.
func (s *Service) targetAction(job *models.PostProcessAsync, wanted *enums.PostProcessAction) string {
	actions := stringSlice(job.Data[models.AsyncDataActions])
	if wanted == nil {
		if len(actions) == 0 {
			return ""
		}
		return actions[len(actions)-1]
	}
	for _, action := range actions {
		if action == wanted.String() {
			return action
		}
	}
	return ""
}

// outputForAction resolves the output upload of one DONE action. For
// fan-out actions the lineage that consumed the original upload picks
// the matching output; otherwise the single output wins.
func (s *Service) outputForAction(ctx context.Context, job *models.PostProcessAsync, action string, uploadUUID uuid.UUID) (uuid.UUID, error) {
	entry, _ := job.Results[action].(map[string]any)
	if entry == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "job recorded no result for "+action)
	}

	lineageRefs, err := uuidSlice(entry[models.AsyncResultPostProcessings])
	if err == nil {
		for _, lineageID := range lineageRefs {
			lineage, err := s.repo.FindLineage(ctx, lineageID)
			if err != nil {
				continue
			}
			if containsUUID(lineage.InputFiles, uploadUUID) && len(lineage.OutputFiles) > 0 {
				return lineage.OutputFiles[0], nil
			}
		}
	}

	outputs, err := uuidSlice(entry[models.AsyncResultUploads])
	if err != nil || len(outputs) == 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "job recorded no output for "+action)
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	// fan-out with no matching lineage: the original passed through
	for _, id := range outputs {
		if id == uploadUUID {
			return id, nil
		}
	}
	return outputs[0], nil
}

func (s *Service) reifyFromLineage(ctx context.Context, uploadUUID uuid.UUID, wanted *enums.PostProcessAction) (*ReifyOutcome, error) {
	current := uploadUUID
	for depth := 0; depth < maxLineageDepth; depth++ {
		rows, err := s.repo.FindLineageByInput(ctx, current)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "walk lineage")
		}
		if len(rows) == 0 {
			break
		}
		step := rows[0]
		if len(step.OutputFiles) == 0 {
			break
		}
		current = step.OutputFiles[0]
		if wanted != nil && step.Type == *wanted {
			upload, err := s.uploads.Get(ctx, current)
			if err != nil {
				return nil, err
			}
			return &ReifyOutcome{State: ReifyResolved, Upload: upload}, nil
		}
	}

	if wanted != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound,
			fmt.Sprintf("no %s output exists for this upload", wanted))
	}
	upload, err := s.uploads.Get(ctx, current)
	if err != nil {
		return nil, err
	}
	return &ReifyOutcome{State: ReifyResolved, Upload: upload}, nil
}

// ProgressOutput is the poll answer for a queued job.
type ProgressOutput struct {
	Progress     float64 `json:"progress"`
	WantedStatus string  `json:"wanted_post_process_status,omitempty"`
}

// Progress reports how far a queued job has come, as a percentage of
// terminal actions.
func (s *Service) Progress(ctx context.Context, jobUUID uuid.UUID, wanted *enums.PostProcessAction) (*ProgressOutput, error) {
	job, err := s.repo.FindAsync(ctx, jobUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "post-processing job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch job")
	}

	statuses := actionStatuses(job)
	if len(statuses) == 0 {
		return &ProgressOutput{}, nil
	}
	terminal := 0
	for _, status := range statuses {
		if status == enums.ActionResultDone.String() || status == enums.ActionResultFailed.String() {
			terminal++
		}
	}
	out := &ProgressOutput{
		Progress: float64(terminal) / float64(len(statuses)) * 100,
	}
	if wanted != nil {
		out.WantedStatus = statuses[wanted.String()]
	}
	return out, nil
}

func actionStatuses(job *models.PostProcessAsync) map[string]string {
	statuses := make(map[string]string, len(job.Results))
	for action, value := range job.Results {
		if entry, ok := value.(map[string]any); ok {
			if status, ok := entry[models.AsyncResultStatus].(string); ok {
				statuses[action] = status
			}
		}
	}
	return statuses
}

func actionErrors(job *models.PostProcessAsync) map[string]any {
	errs := make(map[string]any)
	for action, value := range job.Results {
		if entry, ok := value.(map[string]any); ok {
			if detail, ok := entry[models.AsyncResultErrors]; ok {
				errs[action] = detail
			}
		}
	}
	return errs
}

func containsUUID(ids []uuid.UUID, target uuid.UUID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func wantedName(wanted *enums.PostProcessAction) string {
	if wanted == nil {
		return "final"
	}
	return wanted.String()
}
