package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	"github.com/alillje/lillje-consulting-auth-service/pkg/token"
)

type verifierFake struct {
	claims *models.JWTClaims
	err    error
}

func (v verifierFake) VerifyAccess(raw string) (*models.JWTClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func protectedRouter(verifier accessVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(verifier))
	router.GET("/secure", func(c *gin.Context) {
		claims, _ := currentClaims(c)
		c.JSON(http.StatusOK, gin.H{"subject": claims.Subject})
	})
	return router
}

func TestJWTMissingHeader(t *testing.T) {
	router := protectedRouter(verifierFake{})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestJWTMalformedHeader(t *testing.T) {
	router := protectedRouter(verifierFake{})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Token abc")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "invalid authorization header")
}

func TestJWTExpiredToken(t *testing.T) {
	router := protectedRouter(verifierFake{err: fmt.Errorf("%w: exp elapsed", token.ErrExpired)})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer stale")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "access token expired")
}

func TestJWTInvalidToken(t *testing.T) {
	router := protectedRouter(verifierFake{err: fmt.Errorf("%w: bad signature", token.ErrInvalid)})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer forged")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "invalid access token")
}

func TestJWTValidTokenExposesClaims(t *testing.T) {
	claims := &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}
	router := protectedRouter(verifierFake{claims: claims})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "u1")
}
