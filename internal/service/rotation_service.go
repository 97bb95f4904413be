package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	"github.com/alillje/lillje-consulting-auth-service/internal/repository"
	"github.com/alillje/lillje-consulting-auth-service/pkg/token"
)

// Rotation failures by detected state. The HTTP boundary collapses all
// of them onto a single 401; these exist for classification, metrics
// and tests.
var (
	ErrRefreshMalformed = errors.New("refresh token malformed")
	ErrRefreshUnknown   = errors.New("refresh token unknown")
	ErrRefreshReused    = errors.New("refresh token reused")
	ErrRefreshExpired   = errors.New("refresh token expired")
	ErrRefreshInvalid   = errors.New("refresh token invalid")
)

// RotationOutcome maps a rotation result to its metrics label.
func RotationOutcome(err error) string {
	switch {
	case err == nil:
		return RotationOutcomeRotated
	case errors.Is(err, ErrRefreshMalformed):
		return RotationOutcomeMalformed
	case errors.Is(err, ErrRefreshUnknown):
		return RotationOutcomeUnknown
	case errors.Is(err, ErrRefreshReused):
		return RotationOutcomeReused
	case errors.Is(err, ErrRefreshExpired):
		return RotationOutcomeExpired
	case errors.Is(err, ErrRefreshInvalid):
		return RotationOutcomeInvalid
	default:
		return RotationOutcomeError
	}
}

// TokenStore is the refresh-record persistence contract the engine runs
// against. Both the Postgres and Redis repositories satisfy it.
type TokenStore interface {
	Get(ctx context.Context, owner string) (*models.RefreshRecord, error)
	Save(ctx context.Context, record *models.RefreshRecord) error
	Rotate(ctx context.Context, owner, retiredToken, newToken string, expiresAt time.Time) (bool, error)
	FindByToken(ctx context.Context, token string) (*models.RefreshRecord, error)
	Revoke(ctx context.Context, owner string) error
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshSigner interface {
	IssuePair(id models.TokenIdentity) (*models.TokenPair, error)
	VerifyRefresh(raw string) (*models.JWTClaims, error)
	DecodeUnverified(raw string) (*models.JWTClaims, error)
}

// RotationConfig defines record lifetime and sweep cadence.
type RotationConfig struct {
	RecordTTL     time.Duration
	SweepInterval time.Duration
}

// RotationEngine owns every refresh-record mutation: establishing a
// family at login, rotating on refresh, dropping on logout, and the
// background expiry sweep. It never holds in-process locks; per-record
// atomicity comes from the store's compare-and-set rotation.
type RotationEngine struct {
	store   TokenStore
	signer  refreshSigner
	metrics *MetricsService
	logger  *zap.Logger

	recordTTL     time.Duration
	sweepInterval time.Duration
}

// NewRotationEngine constructs a RotationEngine instance.
func NewRotationEngine(store TokenStore, signer refreshSigner, metrics *MetricsService, logger *zap.Logger, cfg RotationConfig) *RotationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecordTTL <= 0 {
		cfg.RecordTTL = 24 * time.Hour
	}
	return &RotationEngine{
		store:         store,
		signer:        signer,
		metrics:       metrics,
		logger:        logger,
		recordTTL:     cfg.RecordTTL,
		sweepInterval: cfg.SweepInterval,
	}
}

// Establish issues a fresh token pair and makes its refresh token the
// principal's sole current token. An existing record is overwritten in
// place with the prior current token retired into history, so each
// principal holds one live session.
func (e *RotationEngine) Establish(ctx context.Context, id models.TokenIdentity) (*models.TokenPair, error) {
	pair, err := e.signer.IssuePair(id)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	record := &models.RefreshRecord{
		Owner:        id.Subject,
		CurrentToken: pair.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(e.recordTTL),
	}
	if err := e.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save refresh record: %w", err)
	}

	return pair, nil
}

// Rotate runs a presented refresh token through the reuse-detection
// state machine and, when it is valid and current, exchanges it for a
// new pair. The possible outcomes, evaluated in order:
//
//  1. token does not decode: ErrRefreshMalformed.
//  2. token is current nowhere and absent from its owner's history:
//     ErrRefreshUnknown.
//  3. token appears in its owner's history: proof of theft. The whole
//     record is revoked and ErrRefreshReused returned. This check runs
//     before any cryptographic verification so replay of a stolen token
//     is caught even after the token's own expiry.
//  4. token is current but fails verification: ErrRefreshExpired or
//     ErrRefreshInvalid, record left untouched.
//  5. token is current and verifies: claims are echoed into a fresh
//     pair and the record rotated by compare-and-set.
func (e *RotationEngine) Rotate(ctx context.Context, raw string) (*models.TokenPair, *models.JWTClaims, error) {
	pair, claims, err := e.rotate(ctx, raw)
	e.metrics.RecordRotation(RotationOutcome(err))
	return pair, claims, err
}

func (e *RotationEngine) rotate(ctx context.Context, raw string) (*models.TokenPair, *models.JWTClaims, error) {
	unverified, err := e.signer.DecodeUnverified(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRefreshMalformed, err)
	}

	record, err := e.store.FindByToken(ctx, raw)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, nil, e.classifyRetired(ctx, raw, unverified.Subject)
		}
		return nil, nil, fmt.Errorf("find presented token: %w", err)
	}

	claims, err := e.signer.VerifyRefresh(raw)
	if err != nil {
		// A clock-expired current token is not proof of compromise;
		// the record stays for the owner to log in again.
		if errors.Is(err, token.ErrExpired) {
			return nil, nil, ErrRefreshExpired
		}
		return nil, nil, ErrRefreshInvalid
	}

	pair, err := e.signer.IssuePair(claims.Identity())
	if err != nil {
		return nil, nil, fmt.Errorf("issue rotated pair: %w", err)
	}

	rotated, err := e.store.Rotate(ctx, record.Owner, raw, pair.RefreshToken, time.Now().UTC().Add(e.recordTTL))
	if err != nil {
		return nil, nil, fmt.Errorf("rotate refresh record: %w", err)
	}
	if !rotated {
		// Lost a concurrent race: the token was retired between lookup
		// and rotation. Re-classify; the loser lands on the reuse path.
		return nil, nil, e.classifyRetired(ctx, raw, claims.Subject)
	}

	return pair, claims, nil
}

// classifyRetired distinguishes Unknown from Reused for a token that is
// not current anywhere. Only the owner's history separates the two, and
// the check deliberately skips signature verification: a stolen token
// presented after rotation must be recognised even past its own expiry.
func (e *RotationEngine) classifyRetired(ctx context.Context, raw, subject string) error {
	if subject == "" {
		return ErrRefreshUnknown
	}

	record, err := e.store.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return ErrRefreshUnknown
		}
		return fmt.Errorf("load record for reuse check: %w", err)
	}

	if !record.HasUsed(raw) {
		return ErrRefreshUnknown
	}

	e.logger.Warn("refresh token reuse detected, revoking token family",
		zap.String("owner", record.Owner))
	e.metrics.RecordReuse()

	if err := e.store.Revoke(ctx, record.Owner); err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}
	return ErrRefreshReused
}

// Drop removes the record whose current token matches. A miss is not
// an error so logout stays idempotent.
func (e *RotationEngine) Drop(ctx context.Context, raw string) (bool, error) {
	deleted, err := e.store.DeleteByToken(ctx, raw)
	if err != nil {
		return false, fmt.Errorf("delete refresh record: %w", err)
	}
	return deleted, nil
}

// StartSweep boots a goroutine that purges expired records periodically.
func (e *RotationEngine) StartSweep(ctx context.Context) {
	if e.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
}

func (e *RotationEngine) sweep(ctx context.Context) {
	purged, err := e.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		e.logger.Sugar().Warnw("refresh record sweep failed", "error", err)
		return
	}
	if purged > 0 {
		e.metrics.RecordEvictions(purged)
		e.logger.Sugar().Infow("expired refresh records purged", "count", purged)
	}
}
