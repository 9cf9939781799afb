package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dropship-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// Gin context keys set by RequireAccessToken.
const (
	GinUserIDKey = "user_id"
	GinRoleKey   = "role"
)

// RequireAccessToken verifies an access token (local or auth provider) and
// injects identity into the request context. RBAC belongs to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Debug("token rejected", slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, role := claims.UserID(), claims.PlatformRole()
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), userID, role))
		c.Set(GinUserIDKey, userID)
		c.Set(GinRoleKey, role)
		logger.Enrich(c, slog.String("user_id", userID), slog.String("role", role))
		c.Next()
	}
}
