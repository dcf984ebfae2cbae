package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// PostProcessing is a lineage record linking the inputs of one action
// run to the uploads it produced.
type PostProcessing struct {
	UUID        uuid.UUID               `gorm:"column:uuid;type:uuid;primaryKey"`
	Type        enums.PostProcessAction `gorm:"column:type;not null"`
	InputFiles  dbtypes.UUIDArray       `gorm:"column:input_files;type:uuid[];not null"`
	OutputFiles dbtypes.UUIDArray       `gorm:"column:output_files;type:uuid[];not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (PostProcessing) TableName() string { return "post_processings" }

// PostProcessAsync is a queued post-processing job executed by the
// background advancer.
type PostProcessAsync struct {
	UUID      uuid.UUID            `gorm:"column:uuid;type:uuid;primaryKey"`
	Status    enums.AsyncJobStatus `gorm:"column:status;not null;index"`
	Data      dbtypes.JSONMap      `gorm:"column:data;type:jsonb;not null"`
	Results   dbtypes.JSONMap      `gorm:"column:results;type:jsonb;not null"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (PostProcessAsync) TableName() string { return "post_process_asyncs" }

// Data keys of a PostProcessAsync row.
const (
	AsyncDataBaseInput = "base_input"
	AsyncDataActions   = "post_process_actions"
	AsyncDataParams    = "post_process_params"
)

// Result keys of a per-action entry in Results.
const (
	AsyncResultStatus          = "status"
	AsyncResultUploads         = "upload_objects"
	AsyncResultPostProcessings = "post_processing_objects"
	AsyncResultErrors          = "errors"
)
