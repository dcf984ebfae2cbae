package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// Token is a short-lived bearer capability for a single upload. The
// token string itself is the primary key; its signed encoding is a
// presentation detail, the row is authoritative.
type Token struct {
	Token             string            `gorm:"column:token;primaryKey"`
	UploadUUID        uuid.UUID         `gorm:"column:upload_uuid;type:uuid;not null;index"`
	Access            enums.TokenAccess `gorm:"column:access;not null"`
	ForModifiedUpload bool              `gorm:"column:for_modified_upload;not null;default:false"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt         time.Time         `gorm:"column:expires_at;not null"`
}

func (Token) TableName() string { return "tokens" }

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
