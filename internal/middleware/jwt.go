package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	appErrors "github.com/alillje/lillje-consulting-auth-service/pkg/errors"
	"github.com/alillje/lillje-consulting-auth-service/pkg/response"
	"github.com/alillje/lillje-consulting-auth-service/pkg/token"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// accessVerifier checks bearer tokens presented on protected routes.
type accessVerifier interface {
	VerifyAccess(raw string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(verifier accessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := verifier.VerifyAccess(parts[1])
		if err != nil {
			message := "invalid access token"
			if errors.Is(err, token.ErrExpired) {
				message = "access token expired"
			}
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, message))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
