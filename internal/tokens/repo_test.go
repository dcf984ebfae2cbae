package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

func setupTokensTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS tokens (
  token TEXT PRIMARY KEY,
  upload_uuid TEXT NOT NULL,
  access TEXT NOT NULL,
  for_modified_upload INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  expires_at DATETIME NOT NULL
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func TestRepositoryCreateAndFind(t *testing.T) {
	db := setupTokensTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	row := &models.Token{
		Token:      "tok-1",
		UploadUUID: uuid.New(),
		Access:     enums.TokenAccessRead,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().Add(time.Hour).UTC(),
	}
	_, err := repo.Create(ctx, row)
	require.NoError(t, err)

	found, err := repo.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, row.UploadUUID, found.UploadUUID)
	assert.Equal(t, enums.TokenAccessRead, found.Access)

	_, err = repo.FindByToken(ctx, "absent")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryDeleteWriteOnlyClaimsWriteRows(t *testing.T) {
	db := setupTokensTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	write := &models.Token{
		Token:      "w",
		UploadUUID: uuid.New(),
		Access:     enums.TokenAccessWrite,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().Add(time.Hour).UTC(),
	}
	read := &models.Token{
		Token:      "r",
		UploadUUID: uuid.New(),
		Access:     enums.TokenAccessRead,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().Add(time.Hour).UTC(),
	}
	_, err := repo.Create(ctx, write)
	require.NoError(t, err)
	_, err = repo.Create(ctx, read)
	require.NoError(t, err)

	won, err := repo.DeleteWrite(ctx, "w")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.DeleteWrite(ctx, "w")
	require.NoError(t, err)
	assert.False(t, won, "second delete must lose")

	won, err = repo.DeleteWrite(ctx, "r")
	require.NoError(t, err)
	assert.False(t, won, "read token must not be claimable")
}

func TestRepositoryDeleteExpiredAndForUpload(t *testing.T) {
	db := setupTokensTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	uploadID := uuid.New()

	rows := []*models.Token{
		{Token: "live", UploadUUID: uploadID, Access: enums.TokenAccessRead, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().Add(time.Hour).UTC()},
		{Token: "dead", UploadUUID: uploadID, Access: enums.TokenAccessRead, CreatedAt: time.Now().Add(-2 * time.Hour).UTC(), ExpiresAt: time.Now().Add(-time.Hour).UTC()},
		{Token: "other", UploadUUID: uuid.New(), Access: enums.TokenAccessRead, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().Add(time.Hour).UTC()},
	}
	for _, row := range rows {
		_, err := repo.Create(ctx, row)
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = repo.DeleteForUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.FindByToken(ctx, "other")
	assert.NoError(t, err)
}
