package uploads

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

// DuplicateInput selects the uploads to copy. PathByUUID can override
// the destination path per source upload; omitted entries reuse the
// source path and rely on the store's collision suffixing.
type DuplicateInput struct {
	UUIDs        []uuid.UUID
	PathByUUID   map[uuid.UUID]string
	WithModified bool
}

// DuplicateResult reports the outcome for one source upload.
type DuplicateResult struct {
	UploadUUID uuid.UUID `json:"upload_uuid,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Duplicate copies each selected upload's bytes and row into a brand
// new upload. Failures are reported per entry instead of aborting the
// whole batch.
func (s *Service) Duplicate(ctx context.Context, input DuplicateInput) (map[uuid.UUID]DuplicateResult, error) {
	if len(input.UUIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one upload is required")
	}
	results := make(map[uuid.UUID]DuplicateResult, len(input.UUIDs))
	for _, id := range input.UUIDs {
		copied, err := s.duplicateOne(ctx, id, input.PathByUUID[id], input.WithModified)
		if err != nil {
			results[id] = DuplicateResult{Error: err.Error()}
			continue
		}
		results[id] = DuplicateResult{UploadUUID: copied}
	}
	return results, nil
}

func (s *Service) duplicateOne(ctx context.Context, id uuid.UUID, destPath string, withModified bool) (uuid.UUID, error) {
	source, err := s.repo.FindByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch upload")
	}
	if source.Status != enums.UploadStatusUploaded {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
	}

	if destPath == "" {
		destPath = source.BlobPath
	}
	written, err := s.copyBlob(source.BlobPath, destPath)
	if err != nil {
		return uuid.Nil, err
	}

	clone := &models.Upload{
		UUID:      uuid.New(),
		BlobPath:  written,
		Mimetype:  source.Mimetype,
		Size:      source.Size,
		Status:    enums.UploadStatusUploaded,
		Metadata:  source.Metadata.Clone(),
		ExpiresAt: source.ExpiresAt,
	}
	if _, err := s.repo.Create(ctx, clone); err != nil {
		_ = s.blobs.Delete(written)
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist duplicate")
	}

	if withModified {
		if err := s.duplicateVariant(ctx, source, clone); err != nil {
			return uuid.Nil, err
		}
	}
	return clone.UUID, nil
}

func (s *Service) duplicateVariant(ctx context.Context, source, clone *models.Upload) error {
	variant, err := s.repo.FindModified(ctx, source.UUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch modified variant")
	}
	written, err := s.copyBlob(variant.BlobPath, s.variantPathFor(clone))
	if err != nil {
		return err
	}
	_, err = s.repo.CreateModified(ctx, &models.ModifiedUpload{
		UploadUUID: clone.UUID,
		BlobPath:   written,
		Size:       variant.Size,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist duplicate variant")
	}
	return nil
}

func (s *Service) copyBlob(srcPath, destPath string) (string, error) {
	rc, err := s.blobs.Open(srcPath)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open source blob")
	}
	defer rc.Close()
	written, err := s.blobs.Save(destPath, rc)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "copy blob")
	}
	return written, nil
}
