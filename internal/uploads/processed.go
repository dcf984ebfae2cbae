package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/google/uuid"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

const processedUploadToTemplate = "processed/%Y/%m/%d"

// Get returns the upload by its UUID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	return s.findUpload(ctx, id)
}

// AbsBlobPath maps a stored blob path onto the filesystem.
func (s *Service) AbsBlobPath(blobPath string) string {
	return s.blobs.AbsPath(blobPath)
}

// CreateProcessedUpload persists pipeline output bytes as a brand new
// UPLOADED row under the processed area of the store.
func (s *Service) CreateProcessedUpload(ctx context.Context, fileName, mimeType string, content io.Reader) (*models.Upload, error) {
	destPath := expandUploadTo(processedUploadToTemplate, s.now().UTC(), fileName)
	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(content, hasher)}
	written, err := s.blobs.Save(destPath, counter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store processed bytes")
	}

	row := &models.Upload{
		UUID:     uuid.New(),
		BlobPath: written,
		Mimetype: mimeType,
		Size:     counter.n,
		Status:   enums.UploadStatusUploaded,
		Metadata: dbtypes.JSONMap{
			models.MetaKeyName: fileName,
			models.MetaKeyHash: hex.EncodeToString(hasher.Sum(nil)),
		},
	}
	if _, err := s.repo.Create(ctx, row); err != nil {
		_ = s.blobs.Delete(written)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist processed upload")
	}
	return row, nil
}
