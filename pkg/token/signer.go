package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
)

// Verification failures collapse onto these two sentinels so callers can
// distinguish a clock expiry from a bad signature without inspecting causes.
var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Config carries the signing material and lifetimes for both token kinds.
type Config struct {
	AccessPrivateKeyPEM string
	AccessPublicKeyPEM  string
	RefreshSecret       string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Issuer              string
}

// Signer mints and verifies the two token kinds: RS256 access tokens (signed
// with the private key, verifiable by anyone holding the public key) and
// HS256 refresh tokens (shared secret, never leaves this service).
type Signer struct {
	accessPrivate *rsa.PrivateKey
	accessPublic  *rsa.PublicKey
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewSigner parses the PEM key material and validates the configuration.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.AccessPrivateKeyPEM == "" {
		return nil, errors.New("access token private key is required")
	}
	if cfg.RefreshSecret == "" {
		return nil, errors.New("refresh token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 10 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}

	private, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.AccessPrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse access private key: %w", err)
	}

	public := &private.PublicKey
	if cfg.AccessPublicKeyPEM != "" {
		public, err = jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.AccessPublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse access public key: %w", err)
		}
	}

	return &Signer{
		accessPrivate: private,
		accessPublic:  public,
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Signer) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (s *Signer) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccessToken mints a short-lived RS256 access token for the identity.
func (s *Signer) IssueAccessToken(id models.TokenIdentity) (string, error) {
	claims := s.newClaims(id, s.accessTTL)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.accessPrivate)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken mints a HS256 refresh token for the identity.
func (s *Signer) IssueRefreshToken(id models.TokenIdentity) (string, error) {
	claims := s.newClaims(id, s.refreshTTL)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// IssuePair mints a matching access/refresh token couple carrying the same
// claim set.
func (s *Signer) IssuePair(id models.TokenIdentity) (*models.TokenPair, error) {
	access, err := s.IssueAccessToken(id)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(id)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates an access token's RS256 signature and expiry.
func (s *Signer) VerifyAccess(raw string) (*models.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &models.JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.accessPublic, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*models.JWTClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token's HS256 signature and expiry.
func (s *Signer) VerifyRefresh(raw string) (*models.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &models.JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.refreshSecret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*models.JWTClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// DecodeUnverified extracts a token's claims WITHOUT checking signature or
// expiry. It exists solely to locate the owning refresh record before real
// verification runs; its output must never be used to authorize anything.
func (s *Signer) DecodeUnverified(raw string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return claims, nil
}

func (s *Signer) newClaims(id models.TokenIdentity, ttl time.Duration) *models.JWTClaims {
	now := time.Now().UTC()
	return &models.JWTClaims{
		Admin:   id.Admin,
		Company: id.Company,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}
