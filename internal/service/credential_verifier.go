package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	"github.com/alillje/lillje-consulting-auth-service/internal/repository"
	appErrors "github.com/alillje/lillje-consulting-auth-service/pkg/errors"
)

// PasswordHasher abstracts secret hashing so the directory never
// depends on a concrete algorithm.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt-backed hasher. Costs outside the
// valid bcrypt range fall back to the library default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of the secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports whether the secret matches the stored hash.
func (h *BcryptHasher) Compare(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}

type directoryRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// Directory resolves presented credentials against stored principals.
// Unknown identifiers and wrong secrets produce the same error so the
// response never reveals which half failed.
type Directory struct {
	repo   directoryRepository
	hasher PasswordHasher
	logger *zap.Logger
}

// NewDirectory constructs a Directory instance.
func NewDirectory(repo directoryRepository, hasher PasswordHasher, logger *zap.Logger) *Directory {
	if hasher == nil {
		hasher = NewBcryptHasher(bcrypt.DefaultCost)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{repo: repo, hasher: hasher, logger: logger}
}

// Verify authenticates identifier+secret and returns the principal.
func (d *Directory) Verify(ctx context.Context, identifier, secret string) (*models.User, error) {
	user, err := d.repo.FindByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := d.hasher.Compare(user.PasswordHash, secret); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if err := d.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		d.logger.Warn("failed to update last login", zap.Error(err))
	}

	return user, nil
}

// Lookup returns the principal by id.
func (d *Directory) Lookup(ctx context.Context, id string) (*models.User, error) {
	user, err := d.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
