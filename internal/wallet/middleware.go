package wallet

import (
	"context"
	"errors"
	"net/http"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/auth"
	"dropship-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

const ginBalanceKey = "wallet_balance"

// BalanceService is the minimal wallet service interface needed by middleware.
type BalanceService interface {
	GetBalance(ctx context.Context, userID string) (Balance, error)
}

// RequireProfile blocks portal requests from users without a provisioned
// profile and leaves the caller's balance on the gin context.
//
// Staff bypass, they have no wallet.
func RequireProfile(svc BalanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsStaff(role) {
			c.Next()
			return
		}

		userID, err := auth.UserID(c.Request.Context())
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		bal, err := svc.GetBalance(c.Request.Context(), userID)
		if errors.Is(err, apperr.ErrProfileNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "profile not provisioned", "code": apperr.ErrProfileNotFound.Code})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		c.Set(ginBalanceKey, bal)
		c.Next()
	}
}

// BalanceFromGin returns the balance loaded by RequireProfile.
func BalanceFromGin(c *gin.Context) (Balance, bool) {
	v, ok := c.Get(ginBalanceKey)
	if !ok {
		return Balance{}, false
	}
	b, ok := v.(Balance)
	return b, ok
}
