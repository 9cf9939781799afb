package rbac

import (
	"log/slog"
	"net/http"

	"dropship-platform/internal/auth"
	"dropship-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole admits callers holding one of allowed.
// super_admin passes every check.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required", "code": "unauthenticated"})
			return
		}
		if _, ok := set[role]; ok || IsSuperAdmin(role) {
			c.Next()
			return
		}

		userID, _ := auth.UserID(c.Request.Context())
		logger.FromGin(c).Warn("access denied",
			slog.String("user_id", userID),
			slog.String("role", role),
			slog.String("path", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
	}
}

// RequireStaff admits any dashboard role.
func RequireStaff() gin.HandlerFunc {
	return RequireAnyRole(RoleSupportAgent, RoleAdmin)
}

// RequireAdmin admits admins; support agents are limited to chat.
func RequireAdmin() gin.HandlerFunc {
	return RequireAnyRole(RoleAdmin)
}

// RequireDropshipper guards portal routes.
func RequireDropshipper() gin.HandlerFunc {
	return RequireAnyRole(RoleDropshipper)
}
