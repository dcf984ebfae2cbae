package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// Metadata keys every persisted upload carries.
const (
	MetaKeyName         = "name"
	MetaKeyHash         = "hash"
	MetaKeyModifiedHash = "modified_hash"
)

// Upload is the service-side representation of a stored file.
type Upload struct {
	UUID       uuid.UUID          `gorm:"column:uuid;type:uuid;primaryKey"`
	BlobPath   string             `gorm:"column:blob_path;not null"`
	Mimetype   string             `gorm:"column:mimetype;not null"`
	Size       int64              `gorm:"column:size;not null"`
	Status     enums.UploadStatus `gorm:"column:status;not null"`
	Metadata   dbtypes.JSONMap    `gorm:"column:metadata;type:jsonb;not null"`
	UploadedAt time.Time          `gorm:"column:uploaded_at;autoCreateTime"`
	ModifiedAt time.Time          `gorm:"column:modified_at;autoUpdateTime"`
	ExpiresAt  *time.Time         `gorm:"column:expires_at"`
}

func (Upload) TableName() string { return "uploads" }

// Hash returns the stored content hash (lower-case hex SHA-256).
func (u *Upload) Hash() string {
	return u.Metadata.GetString(MetaKeyHash)
}

// Name returns the display filename recorded at request time.
func (u *Upload) Name() string {
	return u.Metadata.GetString(MetaKeyName)
}

// ModifiedUpload is the post-edit variant of an Upload; exclusive 0..1
// ownership by its parent.
type ModifiedUpload struct {
	UploadUUID uuid.UUID `gorm:"column:upload_uuid;type:uuid;primaryKey"`
	BlobPath   string    `gorm:"column:blob_path;not null"`
	Size       int64     `gorm:"column:size;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	ModifiedAt time.Time `gorm:"column:modified_at;autoUpdateTime"`
}

func (ModifiedUpload) TableName() string { return "modified_uploads" }
