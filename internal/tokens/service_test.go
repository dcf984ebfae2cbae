package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

type stubTokenRepo struct {
	rows       map[string]*models.Token
	createErr  error
	deleteWins bool
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{rows: map[string]*models.Token{}, deleteWins: true}
}

func (s *stubTokenRepo) Create(ctx context.Context, token *models.Token) (*models.Token, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.rows[token.Token] = token
	return token, nil
}

func (s *stubTokenRepo) FindByToken(ctx context.Context, token string) (*models.Token, error) {
	row, ok := s.rows[token]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (s *stubTokenRepo) DeleteWrite(ctx context.Context, token string) (bool, error) {
	if !s.deleteWins {
		return false, nil
	}
	if _, ok := s.rows[token]; !ok {
		return false, nil
	}
	delete(s.rows, token)
	return true, nil
}

func (s *stubTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	for key, row := range s.rows {
		if !row.ExpiresAt.After(now) {
			delete(s.rows, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubTokenRepo) DeleteForUpload(ctx context.Context, uploadUUID uuid.UUID) (int64, error) {
	var removed int64
	for key, row := range s.rows {
		if row.UploadUUID == uploadUUID {
			delete(s.rows, key)
			removed++
		}
	}
	return removed, nil
}

func newTestService(t *testing.T, repo tokenRepository) Service {
	t.Helper()
	svc, err := NewService(repo, "test-secret", 15*time.Minute)
	require.NoError(t, err)
	return svc
}

func TestIssueStoresRowWithFutureExpiry(t *testing.T) {
	t.Parallel()

	repo := newStubTokenRepo()
	svc := newTestService(t, repo)

	uploadID := uuid.New()
	row, err := svc.Issue(context.Background(), uploadID, enums.TokenAccessWrite, IssueOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, row.Token)
	assert.Equal(t, uploadID, row.UploadUUID)
	assert.True(t, row.ExpiresAt.After(row.CreatedAt), "expires_at must be after created_at")
	assert.Contains(t, repo.rows, row.Token)
}

func TestIssueCustomTTLAndAbsoluteExpiry(t *testing.T) {
	t.Parallel()

	repo := newStubTokenRepo()
	svc := newTestService(t, repo)

	row, err := svc.Issue(context.Background(), uuid.New(), enums.TokenAccessRead, IssueOptions{TTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, row.ExpiresAt.Sub(row.CreatedAt))

	abs := time.Now().Add(30 * time.Minute).UTC()
	row, err = svc.Issue(context.Background(), uuid.New(), enums.TokenAccessRead, IssueOptions{ExpiresAt: &abs})
	require.NoError(t, err)
	assert.True(t, row.ExpiresAt.Equal(abs))

	past := time.Now().Add(-time.Minute)
	_, err = svc.Issue(context.Background(), uuid.New(), enums.TokenAccessRead, IssueOptions{ExpiresAt: &past})
	assert.Error(t, err, "past expiry must be rejected")
}

func TestResolveUnknownAndExpired(t *testing.T) {
	t.Parallel()

	repo := newStubTokenRepo()
	svc := newTestService(t, repo)

	_, err := svc.Resolve(context.Background(), "missing")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound))

	repo.rows["stale"] = &models.Token{
		Token:      "stale",
		UploadUUID: uuid.New(),
		Access:     enums.TokenAccessRead,
		CreatedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
	}
	_, err = svc.Resolve(context.Background(), "stale")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenExpired))
}

func TestConsumeWriteIsOneShot(t *testing.T) {
	t.Parallel()

	repo := newStubTokenRepo()
	svc := newTestService(t, repo)

	row, err := svc.Issue(context.Background(), uuid.New(), enums.TokenAccessWrite, IssueOptions{})
	require.NoError(t, err)

	consumed, err := svc.ConsumeWrite(context.Background(), row.Token)
	require.NoError(t, err)
	assert.Equal(t, row.UploadUUID, consumed.UploadUUID)

	_, err = svc.ConsumeWrite(context.Background(), row.Token)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound), "second consume: %v", err)
	_, err = svc.Resolve(context.Background(), row.Token)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound), "resolve after consume: %v", err)
}

func TestConsumeWriteRejectsReadTokens(t *testing.T) {
	t.Parallel()

	repo := newStubTokenRepo()
	svc := newTestService(t, repo)

	row, err := svc.Issue(context.Background(), uuid.New(), enums.TokenAccessRead, IssueOptions{})
	require.NoError(t, err)

	_, err = svc.ConsumeWrite(context.Background(), row.Token)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound))
}

func TestConsumeWriteLosingRace(t *testing.T) {
	t.Parallel()

	repo := newStubTokenRepo()
	svc := newTestService(t, repo)

	row, err := svc.Issue(context.Background(), uuid.New(), enums.TokenAccessWrite, IssueOptions{})
	require.NoError(t, err)

	repo.deleteWins = false
	_, err = svc.ConsumeWrite(context.Background(), row.Token)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenNotFound), "loser must observe TOKEN_NOT_FOUND: %v", err)
}

func TestSweepRemovesExpiredOnly(t *testing.T) {
	t.Parallel()

	repo := newStubTokenRepo()
	svc := newTestService(t, repo)

	live, err := svc.Issue(context.Background(), uuid.New(), enums.TokenAccessRead, IssueOptions{TTL: time.Hour})
	require.NoError(t, err)
	repo.rows["old"] = &models.Token{
		Token:     "old",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	removed, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Contains(t, repo.rows, live.Token, "live token must survive sweep")
}
