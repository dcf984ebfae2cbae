package maintenance

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// Repository persists maintenance run rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, run *models.MaintenanceRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) Find(ctx context.Context, taskID uuid.UUID) (*models.MaintenanceRun, error) {
	var run models.MaintenanceRun
	if err := r.db.WithContext(ctx).First(&run, "task_id = ?", taskID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) Save(ctx context.Context, run *models.MaintenanceRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// ListPending returns runs waiting for execution, oldest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.MaintenanceRun, error) {
	var runs []models.MaintenanceRun
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.MaintenanceStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&runs).Error
	return runs, err
}
