package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds the credentials presented to the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// LogoutRequest ends the session holding the presented refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// TokenPair carries one freshly issued access/refresh token couple.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse returns the issued tokens.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated principal in responses.
type UserInfo struct {
	ID      string `json:"id"`
	Company string `json:"company"`
	Admin   bool   `json:"admin"`
}

// TokenIdentity is the claim set minted into every issued token. It is
// extracted from a verified refresh token during rotation and echoed
// unchanged into the replacement pair.
type TokenIdentity struct {
	Subject string
	Company string
	Admin   bool
}

// JWTClaims represents the payload shared by access and refresh tokens.
// Subject carries the principal id; Admin and Company are the role flag and
// display claims. ID (jti) is unique per token so consecutive rotations can
// never mint an identical token string.
type JWTClaims struct {
	Admin   bool   `json:"admin"`
	Company string `json:"company"`
	jwt.RegisteredClaims
}

// Identity extracts the reusable claim set from a token payload.
func (c *JWTClaims) Identity() TokenIdentity {
	return TokenIdentity{Subject: c.Subject, Company: c.Company, Admin: c.Admin}
}
