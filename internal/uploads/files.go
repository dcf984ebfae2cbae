package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/hashutil"
)

// FileOutput describes the bytes handed back by FetchFile.
type FileOutput struct {
	BlobPath string
	Name     string
	Mimetype string
	Size     int64
}

// FetchFile resolves a token to the blob it grants access to, verifying
// the stored checksum before releasing the path for streaming.
func (s *Service) FetchFile(ctx context.Context, tokenString string) (*FileOutput, error) {
	token, err := s.tokens.Resolve(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	upload, err := s.findUpload(ctx, token.UploadUUID)
	if err != nil {
		return nil, err
	}
	switch upload.Status {
	case enums.UploadStatusDeleted:
		return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
	case enums.UploadStatusInfected:
		return nil, pkgerrors.New(pkgerrors.CodeInfected, "file flagged as infected")
	}

	blobPath := upload.BlobPath
	expectedHash := upload.Hash()
	size := upload.Size
	if token.ForModifiedUpload {
		modified, err := s.repo.FindModified(ctx, upload.UUID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch modified variant")
		}
		if modified != nil {
			blobPath = modified.BlobPath
			size = modified.Size
			expectedHash = upload.Metadata.GetString(models.MetaKeyModifiedHash)
		}
	}

	if expectedHash != "" {
		if err := s.verifyChecksum(blobPath, expectedHash); err != nil {
			return nil, err
		}
	}
	return &FileOutput{
		BlobPath: blobPath,
		Name:     upload.Name(),
		Mimetype: upload.Mimetype,
		Size:     size,
	}, nil
}

// OpenBlob streams the bytes behind a previously resolved blob path.
func (s *Service) OpenBlob(blobPath string) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(blobPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open blob")
	}
	return rc, nil
}

// MetadataOutput is the token-scoped metadata view of an upload.
type MetadataOutput struct {
	UUID       string         `json:"uuid"`
	Name       string         `json:"name"`
	Mimetype   string         `json:"mimetype"`
	Size       int64          `json:"size"`
	Status     string         `json:"status"`
	URL        string         `json:"url"`
	Metadata   map[string]any `json:"metadata"`
	UploadedAt time.Time      `json:"uploaded_at"`
	ModifiedAt time.Time      `json:"modified_at"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// Metadata resolves a token and returns the owning upload's metadata,
// including a fetch URL bound to the same token.
func (s *Service) Metadata(ctx context.Context, tokenString string) (*MetadataOutput, error) {
	token, err := s.tokens.Resolve(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	upload, err := s.findUpload(ctx, token.UploadUUID)
	if err != nil {
		return nil, err
	}
	switch upload.Status {
	case enums.UploadStatusDeleted:
		return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
	case enums.UploadStatusInfected:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "file flagged as infected")
	}
	return &MetadataOutput{
		UUID:       upload.UUID.String(),
		Name:       upload.Name(),
		Mimetype:   upload.Mimetype,
		Size:       upload.Size,
		Status:     upload.Status.String(),
		URL:        fmt.Sprintf("%s/file/%s", s.baseURL, token.Token),
		Metadata:   upload.Metadata,
		UploadedAt: upload.UploadedAt,
		ModifiedAt: upload.ModifiedAt,
		ExpiresAt:  upload.ExpiresAt,
	}, nil
}

func (s *Service) verifyChecksum(blobPath, expected string) error {
	rc, err := s.blobs.Open(blobPath)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open blob for verification")
	}
	defer rc.Close()
	digest, _, err := hashutil.Sum(rc)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hash blob")
	}
	if digest != expected {
		return pkgerrors.New(pkgerrors.CodeHashMismatch, "stored file does not match its recorded hash").
			WithDetails(map[string]any{"path": blobPath})
	}
	return nil
}
