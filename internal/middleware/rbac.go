package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	appErrors "github.com/alillje/lillje-consulting-auth-service/pkg/errors"
	"github.com/alillje/lillje-consulting-auth-service/pkg/response"
)

// AdminOnly blocks requests whose token does not carry the admin flag.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.Admin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOrSelf allows admins through, and non-admins only when the id route
// parameter matches their own subject.
func AdminOrSelf() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Admin {
			c.Next()
			return
		}
		if targetID := c.Param("id"); targetID != "" && targetID == claims.Subject {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claimsValue, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := claimsValue.(*models.JWTClaims)
	return claims, ok
}
