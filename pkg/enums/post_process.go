package enums

import "fmt"

// PostProcessAction identifies a pluggable post-processing step.
type PostProcessAction string

const (
	PostProcessActionConvert  PostProcessAction = "CONVERT"
	PostProcessActionMerge    PostProcessAction = "MERGE"
	PostProcessActionOriginal PostProcessAction = "ORIGINAL"
)

// validPostProcessActions lists the runnable actions; ORIGINAL is a
// read-token selector, not an executable step.
var validPostProcessActions = []PostProcessAction{
	PostProcessActionConvert,
	PostProcessActionMerge,
}

func (a PostProcessAction) String() string {
	return string(a)
}

func (a PostProcessAction) IsValid() bool {
	for _, candidate := range validPostProcessActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParsePostProcessAction converts raw input into a runnable action.
func ParsePostProcessAction(value string) (PostProcessAction, error) {
	for _, candidate := range validPostProcessActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid post-process action %q", value)
}

// AsyncJobStatus is the overall status of a queued post-processing job.
type AsyncJobStatus string

const (
	AsyncJobStatusPending AsyncJobStatus = "PENDING"
	AsyncJobStatusFailed  AsyncJobStatus = "FAILED"
	AsyncJobStatusDone    AsyncJobStatus = "DONE"
)

func (s AsyncJobStatus) String() string {
	return string(s)
}

func (s AsyncJobStatus) IsValid() bool {
	switch s {
	case AsyncJobStatusPending, AsyncJobStatusFailed, AsyncJobStatusDone:
		return true
	}
	return false
}

// ActionResultStatus is the per-action status inside a job's results.
type ActionResultStatus string

const (
	ActionResultPending ActionResultStatus = "PENDING"
	ActionResultFailed  ActionResultStatus = "FAILED"
	ActionResultDone    ActionResultStatus = "DONE"
)

func (s ActionResultStatus) String() string {
	return string(s)
}
