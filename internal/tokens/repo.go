package tokens

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// Repository exposes token persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a token repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a token row.
func (r *Repository) Create(ctx context.Context, token *models.Token) (*models.Token, error) {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, err
	}
	return token, nil
}

// FindByToken retrieves a token by its primary key.
func (r *Repository) FindByToken(ctx context.Context, token string) (*models.Token, error) {
	var t models.Token
	if err := r.db.WithContext(ctx).First(&t, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteWrite removes a WRITE token row and reports whether this
// caller won the delete. The single conditional DELETE is what makes
// write-token consumption one-shot under concurrency.
func (r *Repository) DeleteWrite(ctx context.Context, token string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("token = ? AND access = ?", token, enums.TokenAccessWrite).
		Delete(&models.Token{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteExpired removes all tokens past their expiry.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.Token{})
	return res.RowsAffected, res.Error
}

// DeleteForUpload removes every token targeting the given upload.
func (r *Repository) DeleteForUpload(ctx context.Context, uploadUUID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("upload_uuid = ?", uploadUUID).
		Delete(&models.Token{})
	return res.RowsAffected, res.Error
}
