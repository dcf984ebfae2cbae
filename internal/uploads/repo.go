package uploads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// Repository exposes upload metadata persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an upload repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists an upload record.
func (r *Repository) Create(ctx context.Context, upload *models.Upload) (*models.Upload, error) {
	if err := r.db.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, err
	}
	return upload, nil
}

// FindByUUID retrieves an upload by its identifier.
func (r *Repository) FindByUUID(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	var u models.Upload
	if err := r.db.WithContext(ctx).First(&u, "uuid = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByBlobPath retrieves an upload by the path of its stored bytes.
func (r *Repository) FindByBlobPath(ctx context.Context, blobPath string) (*models.Upload, error) {
	var u models.Upload
	if err := r.db.WithContext(ctx).First(&u, "blob_path = ?", blobPath).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Save writes back a mutated upload row.
func (r *Repository) Save(ctx context.Context, upload *models.Upload) error {
	return r.db.WithContext(ctx).Save(upload).Error
}

// Delete removes an upload row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("uuid = ?", id).Delete(&models.Upload{}).Error
}

// ListRequestedBefore returns REQUESTED uploads created before cutoff.
func (r *Repository) ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]models.Upload, error) {
	var rows []models.Upload
	err := r.db.WithContext(ctx).
		Where("status = ? AND uploaded_at < ?", enums.UploadStatusRequested, cutoff).
		Find(&rows).Error
	return rows, err
}

// ListDeletedExpired returns DELETED uploads whose tombstone expiry has passed.
func (r *Repository) ListDeletedExpired(ctx context.Context, now time.Time) ([]models.Upload, error) {
	var rows []models.Upload
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", enums.UploadStatusDeleted, now).
		Find(&rows).Error
	return rows, err
}

// CreateModified persists a modified-variant row.
func (r *Repository) CreateModified(ctx context.Context, modified *models.ModifiedUpload) (*models.ModifiedUpload, error) {
	if err := r.db.WithContext(ctx).Create(modified).Error; err != nil {
		return nil, err
	}
	return modified, nil
}

// FindModified retrieves the modified variant for an upload.
func (r *Repository) FindModified(ctx context.Context, uploadUUID uuid.UUID) (*models.ModifiedUpload, error) {
	var m models.ModifiedUpload
	if err := r.db.WithContext(ctx).First(&m, "upload_uuid = ?", uploadUUID).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveModified writes back a mutated modified-variant row.
func (r *Repository) SaveModified(ctx context.Context, modified *models.ModifiedUpload) error {
	return r.db.WithContext(ctx).Save(modified).Error
}

// DeleteModified removes the modified variant for an upload.
func (r *Repository) DeleteModified(ctx context.Context, uploadUUID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("upload_uuid = ?", uploadUUID).Delete(&models.ModifiedUpload{}).Error
}

// AllBlobPaths returns every non-empty blob path referenced by the
// uploads and modified_uploads tables.
func (r *Repository) AllBlobPaths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := r.db.WithContext(ctx).
		Model(&models.Upload{}).
		Where("blob_path <> ''").
		Pluck("blob_path", &paths).Error; err != nil {
		return nil, err
	}
	var modifiedPaths []string
	if err := r.db.WithContext(ctx).
		Model(&models.ModifiedUpload{}).
		Where("blob_path <> ''").
		Pluck("blob_path", &modifiedPaths).Error; err != nil {
		return nil, err
	}
	return append(paths, modifiedPaths...), nil
}

// CountByBlobPaths reports which of the given paths are referenced by
// either table. Used to re-verify orphan candidates against races.
func (r *Repository) CountByBlobPaths(ctx context.Context, paths []string) (map[string]struct{}, error) {
	if len(paths) == 0 {
		return map[string]struct{}{}, nil
	}
	referenced := make(map[string]struct{})

	var found []string
	if err := r.db.WithContext(ctx).
		Model(&models.Upload{}).
		Where("blob_path IN ?", paths).
		Pluck("blob_path", &found).Error; err != nil {
		return nil, err
	}
	for _, p := range found {
		referenced[p] = struct{}{}
	}

	found = found[:0]
	if err := r.db.WithContext(ctx).
		Model(&models.ModifiedUpload{}).
		Where("blob_path IN ?", paths).
		Pluck("blob_path", &found).Error; err != nil {
		return nil, err
	}
	for _, p := range found {
		referenced[p] = struct{}{}
	}
	return referenced, nil
}

// ChecksumRow is one (uuid, path, hash) triple for the checksum validator.
type ChecksumRow struct {
	UUID     uuid.UUID
	BlobPath string
	Hash     string
}

// ChecksumRows returns the triples with a non-empty stored hash,
// optionally windowed on uploaded_at/modified_at.
func (r *Repository) ChecksumRows(ctx context.Context, from, to *time.Time) ([]ChecksumRow, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Upload{}).
		Select("uuid", "blob_path", "metadata").
		Where("blob_path <> ''")
	if from != nil {
		query = query.Where("uploaded_at >= ? OR modified_at >= ?", *from, *from)
	}
	if to != nil {
		query = query.Where("uploaded_at <= ? OR modified_at <= ?", *to, *to)
	}

	var rows []models.Upload
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]ChecksumRow, 0, len(rows))
	for _, row := range rows {
		hash := row.Hash()
		if hash == "" {
			continue
		}
		out = append(out, ChecksumRow{UUID: row.UUID, BlobPath: row.BlobPath, Hash: hash})
	}
	return out, nil
}
