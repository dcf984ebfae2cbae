package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/internal/tokens"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/storage/disk"
)

type stubUploadRepo struct {
	uploads  map[uuid.UUID]*models.Upload
	modified map[uuid.UUID]*models.ModifiedUpload
}

func newStubUploadRepo() *stubUploadRepo {
	return &stubUploadRepo{
		uploads:  make(map[uuid.UUID]*models.Upload),
		modified: make(map[uuid.UUID]*models.ModifiedUpload),
	}
}

func (s *stubUploadRepo) Create(_ context.Context, upload *models.Upload) (*models.Upload, error) {
	upload.UploadedAt = time.Now().UTC()
	upload.ModifiedAt = upload.UploadedAt
	s.uploads[upload.UUID] = upload
	return upload, nil
}

func (s *stubUploadRepo) FindByUUID(_ context.Context, id uuid.UUID) (*models.Upload, error) {
	upload, ok := s.uploads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *upload
	return &clone, nil
}

func (s *stubUploadRepo) FindByBlobPath(_ context.Context, blobPath string) (*models.Upload, error) {
	for _, upload := range s.uploads {
		if upload.BlobPath == blobPath {
			clone := *upload
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUploadRepo) Save(_ context.Context, upload *models.Upload) error {
	upload.ModifiedAt = time.Now().UTC()
	s.uploads[upload.UUID] = upload
	return nil
}

func (s *stubUploadRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.uploads, id)
	return nil
}

func (s *stubUploadRepo) ListRequestedBefore(_ context.Context, cutoff time.Time) ([]models.Upload, error) {
	var out []models.Upload
	for _, upload := range s.uploads {
		if upload.Status == enums.UploadStatusRequested && upload.UploadedAt.Before(cutoff) {
			out = append(out, *upload)
		}
	}
	return out, nil
}

func (s *stubUploadRepo) ListDeletedExpired(_ context.Context, now time.Time) ([]models.Upload, error) {
	var out []models.Upload
	for _, upload := range s.uploads {
		if upload.Status == enums.UploadStatusDeleted && upload.ExpiresAt != nil && upload.ExpiresAt.Before(now) {
			out = append(out, *upload)
		}
	}
	return out, nil
}

func (s *stubUploadRepo) CreateModified(_ context.Context, modified *models.ModifiedUpload) (*models.ModifiedUpload, error) {
	modified.CreatedAt = time.Now().UTC()
	s.modified[modified.UploadUUID] = modified
	return modified, nil
}

func (s *stubUploadRepo) FindModified(_ context.Context, uploadUUID uuid.UUID) (*models.ModifiedUpload, error) {
	modified, ok := s.modified[uploadUUID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *modified
	return &clone, nil
}

func (s *stubUploadRepo) SaveModified(_ context.Context, modified *models.ModifiedUpload) error {
	s.modified[modified.UploadUUID] = modified
	return nil
}

func (s *stubUploadRepo) DeleteModified(_ context.Context, uploadUUID uuid.UUID) error {
	delete(s.modified, uploadUUID)
	return nil
}

// stubTokenEngine issues opaque tokens and enforces one-shot WRITE
// consumption in memory.
type stubTokenEngine struct {
	seq    int
	tokens map[string]*models.Token
}

func newStubTokenEngine() *stubTokenEngine {
	return &stubTokenEngine{tokens: make(map[string]*models.Token)}
}

func (s *stubTokenEngine) Issue(_ context.Context, uploadUUID uuid.UUID, access enums.TokenAccess, opts tokens.IssueOptions) (*models.Token, error) {
	s.seq++
	row := &models.Token{
		Token:             fmt.Sprintf("token-%d", s.seq),
		UploadUUID:        uploadUUID,
		Access:            access,
		ForModifiedUpload: opts.ForModified,
		CreatedAt:         time.Now().UTC(),
		ExpiresAt:         time.Now().UTC().Add(15 * time.Minute),
	}
	s.tokens[row.Token] = row
	return row, nil
}

func (s *stubTokenEngine) Resolve(_ context.Context, tokenString string) (*models.Token, error) {
	row, ok := s.tokens[tokenString]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "token not found")
	}
	return row, nil
}

func (s *stubTokenEngine) ConsumeWrite(ctx context.Context, tokenString string) (*models.Token, error) {
	row, err := s.Resolve(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if row.Access != enums.TokenAccessWrite {
		return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "token not found")
	}
	delete(s.tokens, tokenString)
	return row, nil
}

func (s *stubTokenEngine) RevokeForUpload(_ context.Context, uploadUUID uuid.UUID) error {
	for key, row := range s.tokens {
		if row.UploadUUID == uploadUUID {
			delete(s.tokens, key)
		}
	}
	return nil
}

func newTestService(t *testing.T, strictMime bool) (*Service, *stubUploadRepo, *stubTokenEngine, *disk.Store) {
	t.Helper()
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)
	repo := newStubUploadRepo()
	engine := newStubTokenEngine()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Tokens: engine,
		Blobs:  store,
		AllowedExtensions: map[string]struct{}{
			"pdf": {}, "png": {}, "txt": {}, "csv": {},
		},
		MimetypeValidation:  strictMime,
		TempDir:             "tmp",
		ExportExpirationAge: time.Hour,
		DeletedMaxAge:       24 * time.Hour,
		BaseURL:             "http://localhost:8080",
	})
	require.NoError(t, err)
	return svc, repo, engine, store
}

func requestTextUpload(t *testing.T, svc *Service, name, body string) *RequestUploadOutput {
	t.Helper()
	out, err := svc.RequestUpload(context.Background(), RequestUploadInput{
		FileName: name,
		Content:  strings.NewReader(body),
	})
	require.NoError(t, err)
	return out
}

func TestRequestUploadStagesFile(t *testing.T) {
	svc, repo, _, store := newTestService(t, false)

	out := requestTextUpload(t, svc, "report.txt", "hello world")

	assert.Equal(t, enums.TokenAccessWrite, out.Token.Access)
	assert.Equal(t, out.Upload.UUID, out.Token.UploadUUID)

	stored := repo.uploads[out.Upload.UUID]
	require.NotNil(t, stored)
	assert.Equal(t, enums.UploadStatusRequested, stored.Status)
	assert.Equal(t, "report.txt", stored.Name())
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", stored.Hash())
	assert.Equal(t, int64(11), stored.Size)
	assert.True(t, strings.HasPrefix(stored.BlobPath, "tmp/"))

	exists, err := store.Exists(stored.BlobPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRequestUploadRejectsExtension(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)

	_, err := svc.RequestUpload(context.Background(), RequestUploadInput{
		FileName: "payload.exe",
		Content:  strings.NewReader("MZ"),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRequestUploadSniffsMimetype(t *testing.T) {
	svc, _, _, _ := newTestService(t, true)

	_, err := svc.RequestUpload(context.Background(), RequestUploadInput{
		FileName: "photo.png",
		Content:  strings.NewReader("just text, not a png"),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMimeMismatch))
}

func TestConfirmUploadMovesFile(t *testing.T) {
	svc, repo, _, store := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	stagedPath := out.Upload.BlobPath

	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{
		UploadTo: "reports/%Y",
		Policy:   enums.ExpirationPolicyExport,
		Metadata: map[string]any{"source": "unit-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, out.Upload.UUID, id)

	stored := repo.uploads[id]
	assert.Equal(t, enums.UploadStatusUploaded, stored.Status)
	assert.False(t, strings.HasPrefix(stored.BlobPath, "tmp/"))
	assert.Equal(t, "unit-test", stored.Metadata.GetString("source"))
	require.NotNil(t, stored.ExpiresAt)

	staged, err := store.Exists(stagedPath)
	require.NoError(t, err)
	assert.False(t, staged)
	moved, err := store.Exists(stored.BlobPath)
	require.NoError(t, err)
	assert.True(t, moved)
}

func TestConfirmUploadConsumesToken(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")

	_, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	_, err = svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound))
}

func TestConfirmUploadIsIdempotentWithFreshToken(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")

	first, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	token, err := svc.IssueWriteToken(context.Background(), first)
	require.NoError(t, err)
	second, err := svc.ConfirmUpload(context.Background(), token.Token, ConfirmUploadInput{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConfirmUploadRefusesHashOverwrite(t *testing.T) {
	svc, repo, _, store := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	stagedPath := out.Upload.BlobPath

	_, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{
		Metadata: map[string]any{"hash": "deadbeef"},
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeHashImmutable))

	// The rejection must leave the staged upload fully intact so a
	// retry with a fresh token can still confirm it.
	stored := repo.uploads[out.Upload.UUID]
	require.NotNil(t, stored)
	assert.Equal(t, enums.UploadStatusRequested, stored.Status)
	assert.Equal(t, stagedPath, stored.BlobPath)
	staged, err := store.Exists(stagedPath)
	require.NoError(t, err)
	assert.True(t, staged)

	retry, err := svc.IssueWriteToken(context.Background(), out.Upload.UUID)
	require.NoError(t, err)
	id, err := svc.ConfirmUpload(context.Background(), retry.Token, ConfirmUploadInput{
		Metadata: map[string]any{"source": "retry"},
	})
	require.NoError(t, err)
	assert.Equal(t, out.Upload.UUID, id)
	assert.Equal(t, enums.UploadStatusUploaded, repo.uploads[id].Status)
}

func TestDeclareInfectedBlocksAccess(t *testing.T) {
	svc, repo, _, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	flagged, err := svc.DeclareInfected(context.Background(), repo.uploads[id].BlobPath)
	require.NoError(t, err)
	assert.Equal(t, id, flagged)

	_, err = svc.IssueReadToken(context.Background(), id, tokens.IssueOptions{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInfected))
}

func TestDeclareInfectedUnknownPath(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)

	_, err := svc.DeclareInfected(context.Background(), "nope/missing.txt")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUploadNotFound))
}

func TestDeclareDeletedIsIdempotent(t *testing.T) {
	svc, repo, engine, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	readToken, err := svc.IssueReadToken(context.Background(), id, tokens.IssueOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeclareDeleted(context.Background(), []uuid.UUID{id, uuid.New()}))
	require.NoError(t, svc.DeclareDeleted(context.Background(), []uuid.UUID{id}))

	assert.Equal(t, enums.UploadStatusDeleted, repo.uploads[id].Status)
	require.NotNil(t, repo.uploads[id].ExpiresAt)
	_, ok := engine.tokens[readToken.Token]
	assert.False(t, ok, "tokens should be revoked on delete")

	_, err = svc.FetchFile(context.Background(), readToken.Token)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound))
}

func TestChangeMetadataRequiresWriteToken(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	readToken, err := svc.IssueReadToken(context.Background(), id, tokens.IssueOptions{})
	require.NoError(t, err)
	_, err = svc.ChangeMetadata(context.Background(), readToken.Token, map[string]any{"label": "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound))

	writeToken, err := svc.IssueWriteToken(context.Background(), id)
	require.NoError(t, err)
	updated, err := svc.ChangeMetadata(context.Background(), writeToken.Token, map[string]any{"label": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", updated.Metadata.GetString("label"))
	assert.Equal(t, "report.txt", updated.Name())
}

func TestChangeMetadataRefusesHashChange(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	writeToken, err := svc.IssueWriteToken(context.Background(), id)
	require.NoError(t, err)
	_, err = svc.ChangeMetadata(context.Background(), writeToken.Token, map[string]any{"hash": "deadbeef"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeHashImmutable))
}

func TestFetchFileVerifiesChecksum(t *testing.T) {
	svc, repo, _, store := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	readToken, err := svc.IssueReadToken(context.Background(), id, tokens.IssueOptions{})
	require.NoError(t, err)

	file, err := svc.FetchFile(context.Background(), readToken.Token)
	require.NoError(t, err)
	assert.Equal(t, "report.txt", file.Name)
	assert.Equal(t, int64(11), file.Size)

	// corrupt the blob on disk and fetch again
	blobPath := repo.uploads[id].BlobPath
	require.NoError(t, store.Delete(blobPath))
	_, err = store.Save(blobPath, strings.NewReader("tampered"))
	require.NoError(t, err)

	_, err = svc.FetchFile(context.Background(), readToken.Token)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeHashMismatch))
}

func TestMetadataBuildsFetchURL(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	readToken, err := svc.IssueReadToken(context.Background(), id, tokens.IssueOptions{})
	require.NoError(t, err)

	meta, err := svc.Metadata(context.Background(), readToken.Token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), meta.UUID)
	assert.Equal(t, "http://localhost:8080/file/"+readToken.Token, meta.URL)
	assert.Equal(t, enums.UploadStatusUploaded.String(), meta.Status)
}

func TestDuplicateCopiesUploads(t *testing.T) {
	svc, repo, _, store := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	missing := uuid.New()
	results, err := svc.Duplicate(context.Background(), DuplicateInput{UUIDs: []uuid.UUID{id, missing}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[missing].Error)

	copied := results[id]
	require.Empty(t, copied.Error)
	require.NotEqual(t, uuid.Nil, copied.UploadUUID)

	clone := repo.uploads[copied.UploadUUID]
	require.NotNil(t, clone)
	assert.Equal(t, repo.uploads[id].Hash(), clone.Hash())
	assert.NotEqual(t, repo.uploads[id].BlobPath, clone.BlobPath, "collision suffix expected")

	exists, err := store.Exists(clone.BlobPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRotateImageProducesVariant(t *testing.T) {
	svc, repo, _, store := newTestService(t, false)

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	out, err := svc.RequestUpload(context.Background(), RequestUploadInput{
		FileName: "photo.png",
		Content:  bytes.NewReader(buf.Bytes()),
	})
	require.NoError(t, err)
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	writeToken, err := svc.IssueWriteToken(context.Background(), id)
	require.NoError(t, err)

	edited, err := svc.RotateImage(context.Background(), writeToken.Token, 90)
	require.NoError(t, err)
	assert.Equal(t, enums.TokenAccessWrite, edited.Token.Access)
	assert.NotEqual(t, writeToken.Token, edited.Token.Token)

	variant := repo.modified[id]
	require.NotNil(t, variant)
	assert.NotEmpty(t, repo.uploads[id].Metadata.GetString(models.MetaKeyModifiedHash))

	rc, err := store.Open(variant.BlobPath)
	require.NoError(t, err)
	defer rc.Close()
	rotated, err := png.Decode(rc)
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.Bounds().Dx())
	assert.Equal(t, 4, rotated.Bounds().Dy())
}

func TestRotateImageRejectsOddAngles(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	out, err := svc.RequestUpload(context.Background(), RequestUploadInput{
		FileName: "photo.png",
		Content:  bytes.NewReader(buf.Bytes()),
	})
	require.NoError(t, err)
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	writeToken, err := svc.IssueWriteToken(context.Background(), id)
	require.NoError(t, err)
	_, err = svc.RotateImage(context.Background(), writeToken.Token, 45)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

type flakySaveStore struct {
	*disk.Store
	failSaves int
}

func (f *flakySaveStore) Save(relPath string, r io.Reader) (string, error) {
	if f.failSaves > 0 {
		f.failSaves--
		return "", errors.New("disk full")
	}
	return f.Store.Save(relPath, r)
}

func TestEditKeepsPreviousVariantWhenSaveFails(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)
	flaky := &flakySaveStore{Store: store}
	repo := newStubUploadRepo()
	svc, err := NewService(ServiceParams{
		Repo:                repo,
		Tokens:              newStubTokenEngine(),
		Blobs:               flaky,
		AllowedExtensions:   map[string]struct{}{"png": {}},
		TempDir:             "tmp",
		ExportExpirationAge: time.Hour,
		DeletedMaxAge:       24 * time.Hour,
		BaseURL:             "http://localhost:8080",
	})
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	out, err := svc.RequestUpload(context.Background(), RequestUploadInput{
		FileName: "photo.png",
		Content:  bytes.NewReader(buf.Bytes()),
	})
	require.NoError(t, err)
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)

	writeToken, err := svc.IssueWriteToken(context.Background(), id)
	require.NoError(t, err)
	edited, err := svc.RotateImage(context.Background(), writeToken.Token, 90)
	require.NoError(t, err)

	firstVariant := repo.modified[id].BlobPath

	flaky.failSaves = 1
	_, err = svc.RotateImage(context.Background(), edited.Token.Token, 90)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	// The previous variant must survive a failed replacement.
	require.NotNil(t, repo.modified[id])
	assert.Equal(t, firstVariant, repo.modified[id].BlobPath)
	exists, err := store.Exists(firstVariant)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCleanupTempUploads(t *testing.T) {
	svc, repo, _, store := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")

	// age the row past the cutoff
	repo.uploads[out.Upload.UUID].UploadedAt = time.Now().UTC().Add(-time.Hour)

	removed, err := svc.CleanupTempUploads(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := repo.uploads[out.Upload.UUID]
	assert.False(t, ok)
	exists, err := store.Exists(out.Upload.BlobPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCleanupExpiredDeleted(t *testing.T) {
	svc, repo, _, _ := newTestService(t, false)
	out := requestTextUpload(t, svc, "report.txt", "hello world")
	id, err := svc.ConfirmUpload(context.Background(), out.Token.Token, ConfirmUploadInput{})
	require.NoError(t, err)
	require.NoError(t, svc.DeclareDeleted(context.Background(), []uuid.UUID{id}))

	past := time.Now().UTC().Add(-time.Minute)
	repo.uploads[id].ExpiresAt = &past

	removed, err := svc.CleanupExpiredDeleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok := repo.uploads[id]
	assert.False(t, ok)
}
