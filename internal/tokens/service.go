package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

type tokenRepository interface {
	Create(ctx context.Context, token *models.Token) (*models.Token, error)
	FindByToken(ctx context.Context, token string) (*models.Token, error)
	DeleteWrite(ctx context.Context, token string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteForUpload(ctx context.Context, uploadUUID uuid.UUID) (int64, error)
}

// IssueOptions tune a single token issuance. Zero values fall back to
// the configured default TTL.
type IssueOptions struct {
	TTL         time.Duration
	ExpiresAt   *time.Time
	ForModified bool
}

// Service issues, resolves, consumes and sweeps capability tokens.
type Service interface {
	Issue(ctx context.Context, uploadUUID uuid.UUID, access enums.TokenAccess, opts IssueOptions) (*models.Token, error)
	Resolve(ctx context.Context, tokenString string) (*models.Token, error)
	ConsumeWrite(ctx context.Context, tokenString string) (*models.Token, error)
	Sweep(ctx context.Context) (int64, error)
	RevokeForUpload(ctx context.Context, uploadUUID uuid.UUID) error
}

type service struct {
	repo       tokenRepository
	signingKey []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// NewService constructs a token service. The signing secret binds the
// opaque token strings to this deployment; the stored row remains the
// source of truth for expiry and revocation.
func NewService(repo tokenRepository, signingSecret string, defaultTTL time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("token repository required")
	}
	if signingSecret == "" {
		return nil, fmt.Errorf("token signing secret required")
	}
	if defaultTTL <= 0 {
		return nil, fmt.Errorf("default token ttl must be positive")
	}
	return &service{
		repo:       repo,
		signingKey: []byte(signingSecret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

func (s *service) Issue(ctx context.Context, uploadUUID uuid.UUID, access enums.TokenAccess, opts IssueOptions) (*models.Token, error) {
	if uploadUUID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload uuid required")
	}
	if !access.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid token access")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.defaultTTL)
	if opts.TTL > 0 {
		expiresAt = now.Add(opts.TTL)
	}
	if opts.ExpiresAt != nil {
		expiresAt = opts.ExpiresAt.UTC()
	}
	if !expiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token expiry must be in the future")
	}

	signed, err := s.sign(uploadUUID, access, opts.ForModified, now, expiresAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign token")
	}

	row := &models.Token{
		Token:             signed,
		UploadUUID:        uploadUUID,
		Access:            access,
		ForModifiedUpload: opts.ForModified,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
	}
	if _, err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist token row")
	}
	return row, nil
}

func (s *service) Resolve(ctx context.Context, tokenString string) (*models.Token, error) {
	if tokenString == "" {
		return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "token required")
	}
	row, err := s.repo.FindByToken(ctx, tokenString)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "token not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch token row")
	}
	if row.Expired(s.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeTokenExpired, "token expired")
	}
	return row, nil
}

func (s *service) ConsumeWrite(ctx context.Context, tokenString string) (*models.Token, error) {
	row, err := s.Resolve(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if row.Access != enums.TokenAccessWrite {
		return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "write token required")
	}

	won, err := s.repo.DeleteWrite(ctx, tokenString)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume token row")
	}
	if !won {
		// a concurrent consumer already claimed it
		return nil, pkgerrors.New(pkgerrors.CodeTokenNotFound, "token not found")
	}
	return row, nil
}

func (s *service) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sweep expired tokens")
	}
	return removed, nil
}

func (s *service) RevokeForUpload(ctx context.Context, uploadUUID uuid.UUID) error {
	if _, err := s.repo.DeleteForUpload(ctx, uploadUUID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke upload tokens")
	}
	return nil
}

func (s *service) sign(uploadUUID uuid.UUID, access enums.TokenAccess, forModified bool, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":      uploadUUID.String(),
		"access":   access.String(),
		"modified": forModified,
		"jti":      uuid.NewString(),
		"iat":      issuedAt.Unix(),
		"exp":      expiresAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
