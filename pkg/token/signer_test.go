package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()

	privatePEM, publicPEM, err := GenerateKeyPair(2048)
	require.NoError(t, err)

	signer, err := NewSigner(Config{
		AccessPrivateKeyPEM: privatePEM,
		AccessPublicKeyPEM:  publicPEM,
		RefreshSecret:       "test_refresh_secret",
		AccessTTL:           time.Minute,
		RefreshTTL:          time.Hour,
		Issuer:              "auth-test",
	})
	require.NoError(t, err)
	return signer
}

func TestAccessTokenRoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	id := models.TokenIdentity{Subject: "u1", Company: "Lillje Consulting", Admin: true}

	raw, err := signer.IssueAccessToken(id)
	require.NoError(t, err)

	claims, err := signer.VerifyAccess(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "Lillje Consulting", claims.Company)
	assert.True(t, claims.Admin)
	assert.Equal(t, "auth-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	id := models.TokenIdentity{Subject: "u2", Company: "Acme"}

	raw, err := signer.IssueRefreshToken(id)
	require.NoError(t, err)

	claims, err := signer.VerifyRefresh(raw)
	require.NoError(t, err)
	assert.Equal(t, "u2", claims.Subject)
	assert.False(t, claims.Admin)
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	signer := newTestSigner(t)

	refresh, err := signer.IssueRefreshToken(models.TokenIdentity{Subject: "u1"})
	require.NoError(t, err)

	_, err = signer.VerifyAccess(refresh)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRefreshRejectsAccessToken(t *testing.T) {
	signer := newTestSigner(t)

	access, err := signer.IssueAccessToken(models.TokenIdentity{Subject: "u1"})
	require.NoError(t, err)

	_, err = signer.VerifyRefresh(access)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRefreshExpired(t *testing.T) {
	signer := newTestSigner(t)

	claims := signer.newClaims(models.TokenIdentity{Subject: "u1"}, -time.Minute)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test_refresh_secret"))
	require.NoError(t, err)

	_, err = signer.VerifyRefresh(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRefreshTampered(t *testing.T) {
	signer := newTestSigner(t)

	raw, err := signer.IssueRefreshToken(models.TokenIdentity{Subject: "u1"})
	require.NoError(t, err)

	tampered := raw[:len(raw)-2] + "xx"
	_, err = signer.VerifyRefresh(tampered)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeUnverifiedReadsExpiredToken(t *testing.T) {
	signer := newTestSigner(t)

	claims := signer.newClaims(models.TokenIdentity{Subject: "u9", Company: "Past Co"}, -time.Hour)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test_refresh_secret"))
	require.NoError(t, err)

	decoded, err := signer.DecodeUnverified(raw)
	require.NoError(t, err)
	assert.Equal(t, "u9", decoded.Subject)
	assert.Equal(t, "Past Co", decoded.Company)

	_, err = signer.DecodeUnverified("not-a-token")
	require.Error(t, err)
}

func TestSuccessiveTokensAreDistinct(t *testing.T) {
	signer := newTestSigner(t)
	id := models.TokenIdentity{Subject: "u1", Company: "Lillje Consulting"}

	first, err := signer.IssueRefreshToken(id)
	require.NoError(t, err)
	second, err := signer.IssueRefreshToken(id)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
