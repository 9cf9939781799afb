package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/auth"
	"dropship-platform/internal/chat"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/orders"
	"dropship-platform/internal/payout"
	"dropship-platform/internal/postpaid"
	"dropship-platform/internal/ratelimit"
	"dropship-platform/internal/rbac"
	"dropship-platform/internal/reporting"
	"dropship-platform/internal/settings"
	"dropship-platform/internal/wallet"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth          *auth.Manager
	Wallet        *wallet.Service
	Postpaid      *postpaid.Service
	Payouts       *payout.Service
	Orders        *orders.Service
	Chat          *chat.Service
	Reporting     *reporting.Service
	Settings      *settings.Service
	Audit         *audit.Service
	Notifications notify.Repository

	// Limiter guards payout creation and chat sends. Nil disables limiting.
	Limiter   ratelimit.Limiter
	RateLimit RateLimits
}

type RateLimits struct {
	Payouts int
	Chat    int
	Window  time.Duration
}

func callerID(c *gin.Context) string {
	id, _ := auth.UserID(c.Request.Context())
	return id
}

func callerRole(c *gin.Context) string {
	role, _ := auth.Role(c.Request.Context())
	return role
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": apperr.ErrInvalidArgument.Code})
		return false
	}
	return true
}

// queryRange parses from/to (RFC 3339). Missing bounds default to the last 30 days.
func queryRange(c *gin.Context, now time.Time) (reporting.TimeRange, error) {
	r := reporting.TimeRange{From: now.AddDate(0, 0, -30), To: now}
	for name, dst := range map[string]*time.Time{"from": &r.From, "to": &r.To} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return reporting.TimeRange{}, apperr.ErrInvalidArgument.WithMessage("%s must be RFC 3339", name)
		}
		*dst = t.UTC()
	}
	return r, nil
}

func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h Handlers) limit(scope string, n int) gin.HandlerFunc {
	if h.Limiter == nil || n <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return ratelimit.Middleware(h.Limiter, scope, n, h.RateLimit.Window)
}

// ClientIP stores the resolved client address for audit events.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IssueToken issues a JWT token pair without checking credentials.
//
// NOTE: Local/dev only. Production tokens come from the auth provider.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	if !rbac.Known(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func (h Handlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": callerID(c), "role": callerRole(c)})
}
