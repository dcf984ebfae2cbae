package postprocess

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// Repository persists pipeline lineage and queued jobs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateLineage(ctx context.Context, lineage *models.PostProcessing) error {
	return r.db.WithContext(ctx).Create(lineage).Error
}

func (r *Repository) FindLineage(ctx context.Context, id uuid.UUID) (*models.PostProcessing, error) {
	var lineage models.PostProcessing
	if err := r.db.WithContext(ctx).First(&lineage, "uuid = ?", id).Error; err != nil {
		return nil, err
	}
	return &lineage, nil
}

// FindLineageByInput returns lineage rows that consumed the given
// upload, newest first.
func (r *Repository) FindLineageByInput(ctx context.Context, id uuid.UUID) ([]models.PostProcessing, error) {
	var rows []models.PostProcessing
	err := r.db.WithContext(ctx).
		Where("? = ANY(input_files)", id).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CreateAsync(ctx context.Context, job *models.PostProcessAsync) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repository) FindAsync(ctx context.Context, id uuid.UUID) (*models.PostProcessAsync, error) {
	var job models.PostProcessAsync
	if err := r.db.WithContext(ctx).First(&job, "uuid = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repository) SaveAsync(ctx context.Context, job *models.PostProcessAsync) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// ListPendingAsync returns queued jobs oldest first.
func (r *Repository) ListPendingAsync(ctx context.Context, limit int) ([]models.PostProcessAsync, error) {
	var jobs []models.PostProcessAsync
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.AsyncJobStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&jobs).Error
	return jobs, err
}

// FindAsyncByBaseInput returns the newest job whose base inputs
// include the given upload.
func (r *Repository) FindAsyncByBaseInput(ctx context.Context, id uuid.UUID) (*models.PostProcessAsync, error) {
	var job models.PostProcessAsync
	err := r.db.WithContext(ctx).
		Where("data -> 'base_input' @> ?", `"`+id.String()+`"`).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}
