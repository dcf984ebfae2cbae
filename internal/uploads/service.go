package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/internal/tokens"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

const defaultUploadToTemplate = "%Y/%m/%d"

type blobStore interface {
	Save(relPath string, r io.Reader) (string, error)
	Open(relPath string) (io.ReadCloser, error)
	Delete(relPath string) error
	Exists(relPath string) (bool, error)
	AbsPath(relPath string) string
}

type tokenEngine interface {
	Issue(ctx context.Context, uploadUUID uuid.UUID, access enums.TokenAccess, opts tokens.IssueOptions) (*models.Token, error)
	Resolve(ctx context.Context, tokenString string) (*models.Token, error)
	ConsumeWrite(ctx context.Context, tokenString string) (*models.Token, error)
	RevokeForUpload(ctx context.Context, uploadUUID uuid.UUID) error
}

type uploadRepository interface {
	Create(ctx context.Context, upload *models.Upload) (*models.Upload, error)
	FindByUUID(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	FindByBlobPath(ctx context.Context, blobPath string) (*models.Upload, error)
	Save(ctx context.Context, upload *models.Upload) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]models.Upload, error)
	ListDeletedExpired(ctx context.Context, now time.Time) ([]models.Upload, error)
	CreateModified(ctx context.Context, modified *models.ModifiedUpload) (*models.ModifiedUpload, error)
	FindModified(ctx context.Context, uploadUUID uuid.UUID) (*models.ModifiedUpload, error)
	SaveModified(ctx context.Context, modified *models.ModifiedUpload) error
	DeleteModified(ctx context.Context, uploadUUID uuid.UUID) error
}

// ServiceParams configure the upload lifecycle service.
type ServiceParams struct {
	Repo                uploadRepository
	Tokens              tokenEngine
	Blobs               blobStore
	PathRegistry        *PathRegistry
	AllowedExtensions   map[string]struct{}
	MimetypeValidation  bool
	TempDir             string
	ExportExpirationAge time.Duration
	DeletedMaxAge       time.Duration
	BaseURL             string
	MaxUploadBytes      int64
}

// Service owns the upload state machine and every file-bearing
// operation behind it.
type Service struct {
	repo        uploadRepository
	tokens      tokenEngine
	blobs       blobStore
	registry    *PathRegistry
	allowedExts map[string]struct{}
	strictMime  bool
	tempDir     string
	exportAge   time.Duration
	deletedAge  time.Duration
	baseURL     string
	maxBytes    int64
	now         func() time.Time
}

// NewService constructs the upload lifecycle service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("upload repository required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token engine required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if len(params.AllowedExtensions) == 0 {
		return nil, fmt.Errorf("allowed extensions required")
	}
	registry := params.PathRegistry
	if registry == nil {
		registry = NewPathRegistry()
	}
	tempDir := strings.Trim(params.TempDir, "/")
	if tempDir == "" {
		tempDir = "tmp"
	}
	deletedAge := params.DeletedMaxAge
	if deletedAge <= 0 {
		deletedAge = 30 * 24 * time.Hour
	}
	return &Service{
		repo:        params.Repo,
		tokens:      params.Tokens,
		blobs:       params.Blobs,
		registry:    registry,
		allowedExts: params.AllowedExtensions,
		strictMime:  params.MimetypeValidation,
		tempDir:     tempDir,
		exportAge:   params.ExportExpirationAge,
		deletedAge:  deletedAge,
		baseURL:     strings.TrimRight(params.BaseURL, "/"),
		maxBytes:    params.MaxUploadBytes,
		now:         time.Now,
	}, nil
}

// RequestUploadInput carries one anonymous temporary upload.
type RequestUploadInput struct {
	FileName     string
	DeclaredMime string
	Content      io.Reader
}

// RequestUploadOutput returns the fresh WRITE token and the created row.
type RequestUploadOutput struct {
	Token  *models.Token
	Upload *models.Upload
}

// RequestUpload validates and stages an anonymous upload, returning a
// WRITE token for the later confirmation.
func (s *Service) RequestUpload(ctx context.Context, input RequestUploadInput) (*RequestUploadOutput, error) {
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
	}
	if input.Content == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file content is required")
	}

	ext := extensionOf(fileName)
	if _, ok := s.allowedExts[ext]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("extension %q is not allowed", ext))
	}

	content := input.Content
	if s.maxBytes > 0 {
		content = io.LimitReader(content, s.maxBytes+1)
	}

	if s.strictMime {
		sniffed, replay, err := sniffHead(content)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading upload head")
		}
		expected := mimeForExtension(ext)
		if !mimeMatches(sniffed, expected) {
			return nil, pkgerrors.New(pkgerrors.CodeMimeMismatch, "declared mime type does not match content").
				WithDetails(map[string]any{"sniffed": sniffed, "expected": expected})
		}
		content = replay
	}

	id := uuid.New()
	tempPath := path.Join(s.tempDir, id.String(), sanitizeFileName(fileName))

	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(content, hasher)}
	written, err := s.blobs.Save(tempPath, counter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store upload bytes")
	}
	if s.maxBytes > 0 && counter.n > s.maxBytes {
		_ = s.blobs.Delete(written)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file exceeds the upload size limit")
	}

	mimeType := strings.TrimSpace(input.DeclaredMime)
	if mimeType == "" {
		mimeType = mimeForExtension(ext)
	}

	row := &models.Upload{
		UUID:     id,
		BlobPath: written,
		Mimetype: mimeType,
		Size:     counter.n,
		Status:   enums.UploadStatusRequested,
		Metadata: dbtypes.JSONMap{
			models.MetaKeyName: fileName,
			models.MetaKeyHash: hex.EncodeToString(hasher.Sum(nil)),
		},
	}
	if _, err := s.repo.Create(ctx, row); err != nil {
		_ = s.blobs.Delete(written)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist upload row")
	}

	token, err := s.tokens.Issue(ctx, id, enums.TokenAccessWrite, tokens.IssueOptions{})
	if err != nil {
		return nil, err
	}
	return &RequestUploadOutput{Token: token, Upload: row}, nil
}

// ConfirmUploadInput carries the confirmation parameters.
type ConfirmUploadInput struct {
	UploadTo     string
	RelatedModel string
	Policy       enums.ExpirationPolicy
	Metadata     map[string]any
}

// ConfirmUpload consumes a WRITE token, relocates the staged bytes to
// their destination and moves the upload to UPLOADED.
func (s *Service) ConfirmUpload(ctx context.Context, tokenString string, input ConfirmUploadInput) (uuid.UUID, error) {
	token, err := s.tokens.ConsumeWrite(ctx, tokenString)
	if err != nil {
		return uuid.Nil, err
	}

	upload, err := s.findUpload(ctx, token.UploadUUID)
	if err != nil {
		return uuid.Nil, err
	}

	switch upload.Status {
	case enums.UploadStatusUploaded:
		// already confirmed; the redundant call succeeds
		return upload.UUID, nil
	case enums.UploadStatusInfected:
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInfected, "file flagged as infected")
	case enums.UploadStatusDeleted:
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
	}

	destPath, err := s.destinationPath(input, upload.Name())
	if err != nil {
		return uuid.Nil, err
	}

	// Validate the request fully before touching blobs, so a rejected
	// confirmation leaves the staged bytes and row untouched.
	if err := s.mergeMetadata(upload, input.Metadata); err != nil {
		return uuid.Nil, err
	}

	src, err := s.blobs.Open(upload.BlobPath)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open staged upload")
	}
	written, err := s.blobs.Save(destPath, src)
	src.Close()
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store confirmed upload")
	}
	stagedPath := upload.BlobPath

	upload.BlobPath = written
	upload.Status = enums.UploadStatusUploaded
	upload.ExpiresAt = s.expiryFor(input.Policy)
	if err := s.repo.Save(ctx, upload); err != nil {
		_ = s.blobs.Delete(written)
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist confirmed upload")
	}
	// The staged copy is dead weight now; a failure here only leaves
	// a temp blob for the cleanup job.
	_ = s.blobs.Delete(stagedPath)
	return upload.UUID, nil
}

// DeclareInfected marks the upload owning blobPath as INFECTED.
func (s *Service) DeclareInfected(ctx context.Context, blobPath string) (uuid.UUID, error) {
	if strings.TrimSpace(blobPath) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path is required")
	}
	upload, err := s.repo.FindByBlobPath(ctx, strings.TrimSpace(blobPath))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch upload by path")
	}

	upload.Status = enums.UploadStatusInfected
	if err := s.repo.Save(ctx, upload); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist infected status")
	}
	return upload.UUID, nil
}

// DeclareDeleted tombstones the given uploads. Unknown and already
// deleted uploads are skipped so the call stays idempotent.
func (s *Service) DeclareDeleted(ctx context.Context, ids []uuid.UUID) error {
	expiry := s.now().UTC().Add(s.deletedAge)
	for _, id := range ids {
		upload, err := s.repo.FindByUUID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch upload")
		}
		if upload.Status == enums.UploadStatusDeleted {
			continue
		}
		upload.Status = enums.UploadStatusDeleted
		expiresAt := expiry
		upload.ExpiresAt = &expiresAt
		if err := s.repo.Save(ctx, upload); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist deleted status")
		}
		if err := s.tokens.RevokeForUpload(ctx, upload.UUID); err != nil {
			return err
		}
	}
	return nil
}

// ChangeMetadata applies a patch to the upload's metadata via a WRITE
// token, refusing any attempt to change the content hash.
func (s *Service) ChangeMetadata(ctx context.Context, tokenString string, patch map[string]any) (*models.Upload, error) {
	token, err := s.tokens.Resolve(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if token.Access != enums.TokenAccessWrite {
		return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "write token required")
	}

	upload, err := s.findUpload(ctx, token.UploadUUID)
	if err != nil {
		return nil, err
	}
	if err := s.mergeMetadata(upload, patch); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, upload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist metadata")
	}
	return upload, nil
}

// IssueWriteToken returns a fresh WRITE token for an existing upload.
func (s *Service) IssueWriteToken(ctx context.Context, uploadUUID uuid.UUID) (*models.Token, error) {
	upload, err := s.findUpload(ctx, uploadUUID)
	if err != nil {
		return nil, err
	}
	if upload.Status == enums.UploadStatusDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
	}
	return s.tokens.Issue(ctx, upload.UUID, enums.TokenAccessWrite, tokens.IssueOptions{})
}

// IssueReadToken returns a READ token for an existing upload, honoring
// infected/deleted policy and custom expiry.
func (s *Service) IssueReadToken(ctx context.Context, uploadUUID uuid.UUID, opts tokens.IssueOptions) (*models.Token, error) {
	upload, err := s.findUpload(ctx, uploadUUID)
	if err != nil {
		return nil, err
	}
	switch upload.Status {
	case enums.UploadStatusInfected:
		return nil, pkgerrors.New(pkgerrors.CodeInfected, "file flagged as infected")
	case enums.UploadStatusDeleted:
		return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
	}
	return s.tokens.Issue(ctx, upload.UUID, enums.TokenAccessRead, opts)
}

func (s *Service) findUpload(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	upload, err := s.repo.FindByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUploadNotFound, "upload not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch upload")
	}
	return upload, nil
}

func (s *Service) destinationPath(input ConfirmUploadInput, fileName string) (string, error) {
	if template := strings.TrimSpace(input.UploadTo); template != "" {
		return expandUploadTo(template, s.now().UTC(), fileName), nil
	}
	if input.RelatedModel != "" {
		fn, err := s.registry.Resolve(input.RelatedModel)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve related model")
		}
		return fn(fileName), nil
	}
	return expandUploadTo(defaultUploadToTemplate, s.now().UTC(), fileName), nil
}

func (s *Service) expiryFor(policy enums.ExpirationPolicy) *time.Time {
	if policy == enums.ExpirationPolicyExport && s.exportAge > 0 {
		expiry := s.now().UTC().Add(s.exportAge)
		return &expiry
	}
	return nil
}

func (s *Service) mergeMetadata(upload *models.Upload, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	merged := upload.Metadata.Clone()
	for key, value := range patch {
		if key == models.MetaKeyHash {
			if str, ok := value.(string); !ok || str != upload.Hash() {
				return pkgerrors.New(pkgerrors.CodeHashImmutable, "hash metadata cannot be changed")
			}
			continue
		}
		merged[key] = value
	}
	upload.Metadata = merged
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
