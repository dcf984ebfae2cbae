package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// MaintenanceRun tracks one execution of a maintenance job (orphan
// finder or checksum validator) with live progress.
type MaintenanceRun struct {
	TaskID             uuid.UUID               `gorm:"column:task_id;type:uuid;primaryKey"`
	Task               enums.MaintenanceTask   `gorm:"column:task;not null"`
	Status             enums.MaintenanceStatus `gorm:"column:status;not null;index"`
	ProgressPercentage float64                 `gorm:"column:progress_percentage;not null;default:0"`
	CurrentStep        string                  `gorm:"column:current_step"`
	ProgressInfo       dbtypes.JSONMap         `gorm:"column:progress_info;type:jsonb;not null"`
	Parameters         dbtypes.JSONMap         `gorm:"column:parameters;type:jsonb;not null"`
	DetailedReport     dbtypes.JSONMap         `gorm:"column:detailed_report;type:jsonb;not null"`
	ErrorMessage       string                  `gorm:"column:error_message"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	CompletedAt        *time.Time              `gorm:"column:completed_at"`
}

func (MaintenanceRun) TableName() string { return "maintenance_runs" }
