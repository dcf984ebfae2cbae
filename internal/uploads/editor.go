package uploads

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/internal/tokens"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/hashutil"
)

var imagingFormatByMime = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
}

// EditorOutput carries the fresh WRITE token issued after an edit.
type EditorOutput struct {
	Token  *models.Token
	Upload *models.Upload
}

// RotateImage consumes a WRITE token, rotates the image by the given
// clockwise degrees and stores the result as the modified variant. A
// fresh WRITE token is returned so the client can keep editing.
func (s *Service) RotateImage(ctx context.Context, tokenString string, degrees int) (*EditorOutput, error) {
	token, err := s.tokens.ConsumeWrite(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	upload, err := s.liveUpload(ctx, token.UploadUUID)
	if err != nil {
		return nil, err
	}
	format, ok := imagingFormatByMime[upload.Mimetype]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeFormatInvalid, fmt.Sprintf("cannot rotate %s files", upload.Mimetype))
	}

	normalized := ((degrees % 360) + 360) % 360
	if normalized%90 != 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rotation must be a multiple of 90 degrees")
	}

	srcPath, err := s.variantSourcePath(ctx, upload)
	if err != nil {
		return nil, err
	}
	rc, err := s.blobs.Open(srcPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open image")
	}
	img, err := imaging.Decode(rc)
	rc.Close()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeFormatInvalid, err, "decode image")
	}

	// imaging rotates counter-clockwise
	switch normalized {
	case 90:
		img = imaging.Rotate270(img)
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate90(img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "encode rotated image")
	}
	return s.finishEdit(ctx, upload, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
}

// SaveEditor consumes a WRITE token and stores the submitted PDF as the
// modified variant, optionally rotating individual pages first.
func (s *Service) SaveEditor(ctx context.Context, tokenString string, content io.Reader, rotations map[int]int) (*EditorOutput, error) {
	if content == nil {
		return nil, pkgerrors.New(pkgerrors.CodeMissingFile, "a file is required")
	}
	token, err := s.tokens.ConsumeWrite(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	upload, err := s.liveUpload(ctx, token.UploadUUID)
	if err != nil {
		return nil, err
	}
	if upload.Mimetype != "application/pdf" {
		return nil, pkgerrors.New(pkgerrors.CodeFormatInvalid, "the editor only saves PDF files")
	}

	variantPath, err := s.replaceVariantBlob(ctx, upload, content)
	if err != nil {
		return nil, err
	}
	if err := s.applyPageRotations(variantPath, rotations); err != nil {
		return nil, err
	}

	digest, size, err := hashutil.SumFile(s.blobs.AbsPath(variantPath))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hash edited file")
	}
	return s.recordVariant(ctx, upload, variantPath, digest, size)
}

// liveUpload rejects deleted and infected uploads before an edit.
func (s *Service) liveUpload(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	upload, err := s.findUpload(ctx, id)
	if err != nil {
		return nil, err
	}
	switch upload.Status {
	case enums.UploadStatusDeleted:
		return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
	case enums.UploadStatusInfected:
		return nil, pkgerrors.New(pkgerrors.CodeInfected, "file flagged as infected")
	}
	return upload, nil
}

func (s *Service) variantSourcePath(ctx context.Context, upload *models.Upload) (string, error) {
	modified, err := s.repo.FindModified(ctx, upload.UUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return upload.BlobPath, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch modified variant")
	}
	return modified.BlobPath, nil
}

func (s *Service) variantPathFor(upload *models.Upload) string {
	return path.Join(path.Dir(upload.BlobPath), "modified", path.Base(upload.BlobPath))
}

// replaceVariantBlob stores the new bytes at the canonical variant path
// and only then drops any previous variant blob. The store suffixes on
// collision, so the old blob never blocks the save; if the save fails
// the existing variant stays readable.
func (s *Service) replaceVariantBlob(ctx context.Context, upload *models.Upload, content io.Reader) (string, error) {
	existing, err := s.repo.FindModified(ctx, upload.UUID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch modified variant")
	}
	written, err := s.blobs.Save(s.variantPathFor(upload), content)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store variant bytes")
	}
	if existing != nil && existing.BlobPath != written {
		if err := s.blobs.Delete(existing.BlobPath); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove previous variant")
		}
	}
	return written, nil
}

func (s *Service) finishEdit(ctx context.Context, upload *models.Upload, content io.Reader, size int64) (*EditorOutput, error) {
	hasher := sha256.New()
	variantPath, err := s.replaceVariantBlob(ctx, upload, io.TeeReader(content, hasher))
	if err != nil {
		return nil, err
	}
	return s.recordVariant(ctx, upload, variantPath, hex.EncodeToString(hasher.Sum(nil)), size)
}

func (s *Service) recordVariant(ctx context.Context, upload *models.Upload, blobPath, digest string, size int64) (*EditorOutput, error) {
	existing, err := s.repo.FindModified(ctx, upload.UUID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch modified variant")
	}
	if existing == nil {
		existing = &models.ModifiedUpload{UploadUUID: upload.UUID}
	}
	existing.BlobPath = blobPath
	existing.Size = size
	if existing.CreatedAt.IsZero() {
		if _, err := s.repo.CreateModified(ctx, existing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist modified variant")
		}
	} else if err := s.repo.SaveModified(ctx, existing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist modified variant")
	}

	merged := upload.Metadata.Clone()
	merged[models.MetaKeyModifiedHash] = digest
	upload.Metadata = merged
	if err := s.repo.Save(ctx, upload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist upload metadata")
	}

	token, err := s.tokens.Issue(ctx, upload.UUID, enums.TokenAccessWrite, tokens.IssueOptions{})
	if err != nil {
		return nil, err
	}
	return &EditorOutput{Token: token, Upload: upload}, nil
}

// applyPageRotations rotates the selected pages in place, grouping
// pages by angle so each angle costs one pass.
func (s *Service) applyPageRotations(variantPath string, rotations map[int]int) error {
	if len(rotations) == 0 {
		return nil
	}
	pagesByAngle := make(map[int][]string)
	for page, degrees := range rotations {
		if page < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "page numbers start at 1")
		}
		angle := ((degrees % 360) + 360) % 360
		if angle%90 != 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "rotation must be a multiple of 90 degrees")
		}
		if angle == 0 {
			continue
		}
		pagesByAngle[angle] = append(pagesByAngle[angle], strconv.Itoa(page))
	}

	abs := s.blobs.AbsPath(variantPath)
	angles := make([]int, 0, len(pagesByAngle))
	for angle := range pagesByAngle {
		angles = append(angles, angle)
	}
	sort.Ints(angles)
	for _, angle := range angles {
		if err := api.RotateFile(abs, "", angle, pagesByAngle[angle], nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeFormatInvalid, err, "rotate pages")
		}
	}
	return nil
}
