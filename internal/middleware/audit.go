package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	"github.com/alillje/lillje-consulting-auth-service/internal/service"
)

// Audit records an audit entry after successful requests. Entries go through
// the asynchronous recorder so the request path never waits on the trail.
func Audit(recorder *service.AuditRecorder, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := currentClaims(c); ok {
			userID = &claims.Subject
		}

		detail, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		recorder.Record(&models.AuditLog{
			UserID:    userID,
			Action:    action,
			Detail:    detail,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
	}
}
