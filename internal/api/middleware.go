package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/storefront/internal/identity"
	"github.com/sirupsen/logrus"
)

const (
	identityKey = "identity"
	loggerKey   = "logger"
)

// AccessLog attaches a request-scoped logger and logs every request when it completes.
func AccessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		entry := log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
		})
		c.Set(loggerKey, entry)

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.WithFields(fields).Error("request completed")
		} else {
			entry.WithFields(fields).Info("request completed")
		}
	}
}

// Authenticate resolves the caller identity. No Authorization header means a guest;
// a header that does not verify is rejected.
func Authenticate(v *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(identityKey, identity.Anonymous)
			c.Next()
			return
		}

		raw, ok := identity.BearerToken(header)
		if !ok {
			respondError(c, identity.ErrInvalidToken)
			return
		}

		id, err := v.Verify(raw)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(identityKey, id)
		if l, ok := c.Get(loggerKey); ok {
			if entry, ok := l.(logrus.FieldLogger); ok {
				c.Set(loggerKey, entry.WithField("subject", id.Subject))
			}
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) identity.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(identity.Identity); ok {
			return id
		}
	}
	return identity.Anonymous
}

// AdminKey guards admin routes with a shared key in X-API-KEY. An empty key locks them.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader("X-API-KEY")
		if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			requestLogger(c).Warn("admin request rejected")
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "forbidden", Code: "forbidden"})
			return
		}
		c.Next()
	}
}
