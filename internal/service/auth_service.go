package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	appErrors "github.com/alillje/lillje-consulting-auth-service/pkg/errors"
)

type credentialVerifier interface {
	Verify(ctx context.Context, identifier, secret string) (*models.User, error)
	Lookup(ctx context.Context, id string) (*models.User, error)
}

type rotationEngine interface {
	Establish(ctx context.Context, id models.TokenIdentity) (*models.TokenPair, error)
	Rotate(ctx context.Context, raw string) (*models.TokenPair, *models.JWTClaims, error)
	Drop(ctx context.Context, raw string) (bool, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTTL time.Duration
	// Diagnostics lets rejection responses name the failing state. Kept
	// off in production so the API is not an oracle for which check
	// rejected a token.
	Diagnostics bool
}

// AuthService orchestrates the session endpoints: credential
// verification, token family establishment, rotation and teardown.
type AuthService struct {
	verifier  credentialVerifier
	engine    rotationEngine
	audit     *AuditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(verifier credentialVerifier, engine rotationEngine, audit *AuditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		verifier:  verifier,
		engine:    engine,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Login authenticates a principal and opens its token family.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "identifier and secret are required")
	}

	user, err := s.verifier.Verify(ctx, req.Identifier, req.Secret)
	if err != nil {
		s.metrics.RecordLogin(false)
		s.audit.Record(&models.AuditLog{
			Action:    models.AuditActionLoginFailed,
			Detail:    []byte(fmt.Sprintf(`{"identifier":%q}`, req.Identifier)),
			IPAddress: req.IP,
			UserAgent: req.UserAgent,
		})
		return nil, err
	}

	pair, err := s.engine.Establish(ctx, models.TokenIdentity{Subject: user.ID, Company: user.Company, Admin: user.Admin})
	if err != nil {
		s.metrics.RecordLogin(false)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to establish session")
	}

	s.metrics.RecordLogin(true)
	s.audit.Record(&models.AuditLog{
		UserID:    &user.ID,
		Action:    models.AuditActionLogin,
		Detail:    []byte(`{"status":"success"}`),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})

	return &models.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Refresh exchanges a refresh token for a new pair via the rotation
// engine.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "refresh token is required")
	}

	pair, claims, err := s.engine.Rotate(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.rotationError(err, req)
	}

	s.audit.Record(&models.AuditLog{
		UserID:    &claims.Subject,
		Action:    models.AuditActionRefresh,
		Detail:    []byte(`{"status":"rotated"}`),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})

	return &models.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Logout drops the record holding the presented refresh token. The
// operation is idempotent: a token matching nothing is still a clean
// logout.
func (s *AuthService) Logout(ctx context.Context, req models.LogoutRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "refresh token is required")
	}

	deleted, err := s.engine.Drop(ctx, req.RefreshToken)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}

	s.audit.Record(&models.AuditLog{
		Action:    models.AuditActionLogout,
		Detail:    []byte(fmt.Sprintf(`{"matched":%t}`, deleted)),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})

	return nil
}

// Me returns the profile behind a verified access token subject.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.verifier.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UserInfo{ID: user.ID, Company: user.Company, Admin: user.Admin}, nil
}

// rotationError collapses every rotation failure onto 401 and records
// the audit trail for reuse events. Unexpected store or signer faults
// keep their 500.
func (s *AuthService) rotationError(err error, req models.RefreshRequest) error {
	outcome := RotationOutcome(err)
	if outcome == RotationOutcomeError {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}

	if outcome == RotationOutcomeReused {
		s.audit.Record(&models.AuditLog{
			Action:    models.AuditActionReuseRevoke,
			Detail:    []byte(`{"outcome":"reused"}`),
			IPAddress: req.IP,
			UserAgent: req.UserAgent,
		})
	}

	message := "invalid refresh token"
	if s.config.Diagnostics {
		message = err.Error()
	}
	return appErrors.Clone(appErrors.ErrUnauthorized, message)
}
