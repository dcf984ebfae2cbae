package uploads

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

// CleanupTempUploads removes REQUESTED uploads that were never
// confirmed within maxAge, together with their staged bytes and any
// leftover tokens. Returns the number of uploads removed.
func (s *Service) CleanupTempUploads(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-maxAge)
	stale, err := s.repo.ListRequestedBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale uploads")
	}
	return s.purge(ctx, stale)
}

// CleanupExpiredDeleted removes DELETED uploads whose retention window
// has passed, including blobs and modified variants.
func (s *Service) CleanupExpiredDeleted(ctx context.Context) (int, error) {
	expired, err := s.repo.ListDeletedExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired uploads")
	}
	return s.purge(ctx, expired)
}

func (s *Service) purge(ctx context.Context, uploads []models.Upload) (int, error) {
	removed := 0
	for i := range uploads {
		upload := &uploads[i]
		if err := s.blobs.Delete(upload.BlobPath); err != nil {
			return removed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete blob")
		}
		if err := s.purgeVariant(ctx, upload); err != nil {
			return removed, err
		}
		if err := s.tokens.RevokeForUpload(ctx, upload.UUID); err != nil {
			return removed, err
		}
		if err := s.repo.Delete(ctx, upload.UUID); err != nil {
			return removed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete upload row")
		}
		removed++
	}
	return removed, nil
}

func (s *Service) purgeVariant(ctx context.Context, upload *models.Upload) error {
	variant, err := s.repo.FindModified(ctx, upload.UUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch modified variant")
	}
	if err := s.blobs.Delete(variant.BlobPath); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete variant blob")
	}
	if err := s.repo.DeleteModified(ctx, upload.UUID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete variant row")
	}
	return nil
}
