package httpapi

import (
	"net/http"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/payout"
	"dropship-platform/internal/reporting"
	"dropship-platform/internal/settings"
	"dropship-platform/internal/store"
	"dropship-platform/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Admin handlers. RBAC: admin or super_admin (see routes).

/* ===================== USERS & WALLET ===================== */

func (h Handlers) ProvisionUser(c *gin.Context) {
	var req wallet.ProvisionRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Wallet.Provision(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h Handlers) GetUserWallet(c *gin.Context) {
	r, err := queryRange(c, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := h.Wallet.Statement(c.Request.Context(), c.Param("user_id"), r.From, r.To)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) AdjustUserWallet(c *gin.Context) {
	var req wallet.AdminAdjustRequest
	if !bindJSON(c, &req) {
		return
	}
	tx, err := h.Wallet.AdminAdjust(c.Request.Context(), callerID(c), c.Param("user_id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

/* ===================== POSTPAID ===================== */

func (h Handlers) GetUserPostpaid(c *gin.Context) {
	st, err := h.Postpaid.GetStatus(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) ListUserPostpaidTransactions(c *gin.Context) {
	txs, err := h.Postpaid.Transactions(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

type adjustPostpaidRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (h Handlers) AdjustUserPostpaid(c *gin.Context) {
	var req adjustPostpaidRequest
	if !bindJSON(c, &req) {
		return
	}
	tx, err := h.Postpaid.AdjustBalance(c.Request.Context(), callerID(c), c.Param("user_id"), req.Amount, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// postpaidSettingsRequest is a partial update; nil fields are left as they are.
type postpaidSettingsRequest struct {
	Enabled             *bool            `json:"enabled"`
	CreditLimit         *decimal.Decimal `json:"credit_limit"`
	DueCycleDays        *int             `json:"due_cycle_days"`
	ClearDueCycle       bool             `json:"clear_due_cycle"`
	AllowPayoutWithDues *bool            `json:"allow_payout_with_dues"`
}

func (h Handlers) UpdateUserPostpaid(c *gin.Context) {
	var req postpaidSettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	adminID, userID := callerID(c), c.Param("user_id")

	st, err := h.Postpaid.GetStatus(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Enabled != nil {
		if st, err = h.Postpaid.SetEnabled(ctx, adminID, userID, *req.Enabled); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.CreditLimit != nil {
		if st, err = h.Postpaid.SetCreditLimit(ctx, adminID, userID, *req.CreditLimit); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.DueCycleDays != nil || req.ClearDueCycle {
		if st, err = h.Postpaid.SetDueCycle(ctx, adminID, userID, req.DueCycleDays); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.AllowPayoutWithDues != nil {
		if st, err = h.Postpaid.SetAllowPayoutWithDues(ctx, adminID, userID, *req.AllowPayoutWithDues); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) SendDueReminders(c *gin.Context) {
	res, err := h.Postpaid.SendDueReminders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

/* ===================== REPORTS ===================== */

func (h Handlers) GetUserWalletSummary(c *gin.Context) {
	r, err := queryRange(c, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.Reporting.WalletSummary(c.Request.Context(), reporting.WalletSummaryRequest{UserID: c.Param("user_id"), Range: r})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetUserDuesSummary(c *gin.Context) {
	r, err := queryRange(c, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.Reporting.DuesSummary(c.Request.Context(), reporting.WalletSummaryRequest{UserID: c.Param("user_id"), Range: r})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

/* ===================== PAYOUTS ===================== */

func (h Handlers) ListPayouts(c *gin.Context) {
	out, err := h.Payouts.ListAll(c.Request.Context(), domain.PayoutStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": out})
}

func (h Handlers) ProcessPayout(c *gin.Context) {
	var req payout.ProcessRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Payouts.AdminProcess(c.Request.Context(), callerID(c), c.Param("payout_id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

/* ===================== ORDERS ===================== */

func (h Handlers) ListOrders(c *gin.Context) {
	out, err := h.Orders.List(c.Request.Context(), store.OrderFilter{
		UserID: c.Query("user_id"),
		Status: domain.OrderStatus(c.Query("status")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

type orderStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h Handlers) UpdateOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.Orders.UpdateStatus(c.Request.Context(), callerID(c), c.Param("order_id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

/* ===================== SETTINGS ===================== */

type platformSettings struct {
	Payout   settings.Payout   `json:"payout"`
	Chat     settings.Chat     `json:"chat"`
	Branding settings.Branding `json:"branding"`
}

func (h Handlers) GetSettings(c *gin.Context) {
	ctx := c.Request.Context()
	var out platformSettings
	var err error
	if out.Payout, err = h.Settings.Payout(ctx); err != nil {
		writeError(c, err)
		return
	}
	if out.Chat, err = h.Settings.Chat(ctx); err != nil {
		writeError(c, err)
		return
	}
	if out.Branding, err = h.Settings.Branding(ctx); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// UpdateSettings replaces one settings section: payout, chat or branding.
func (h Handlers) UpdateSettings(c *gin.Context) {
	ctx := c.Request.Context()
	adminID, key := callerID(c), c.Param("key")

	var out any
	var err error
	switch key {
	case settings.KeyPayout:
		var v settings.Payout
		if !bindJSON(c, &v) {
			return
		}
		out, err = h.Settings.UpdatePayout(ctx, adminID, v)
	case settings.KeyChat:
		var v settings.Chat
		if !bindJSON(c, &v) {
			return
		}
		out, err = h.Settings.UpdateChat(ctx, adminID, v)
	case settings.KeyBranding:
		var v settings.Branding
		if !bindJSON(c, &v) {
			return
		}
		out, err = h.Settings.UpdateBranding(ctx, adminID, v)
	default:
		writeError(c, apperr.NotFound("setting_not_found", "unknown settings key"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(ctx, audit.Event{
		Type:        audit.EventSettingsChanged,
		ActorUserID: adminID,
		ActorRole:   callerRole(c),
		EntityType:  "platform_setting",
		EntityID:    key,
	}, out)
	c.JSON(http.StatusOK, out)
}

/* ===================== AUDIT & NOTIFICATIONS ===================== */

func (h Handlers) ListAuditEvents(c *gin.Context) {
	f := audit.Filter{
		SubjectUserID: c.Query("user_id"),
		ActorUserID:   c.Query("actor_id"),
		Type:          audit.EventType(c.Query("type")),
		EntityType:    c.Query("entity_type"),
		EntityID:      c.Query("entity_id"),
		Limit:         queryLimit(c, 100),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339", "code": "invalid_argument"})
			return
		}
		f.Since = since
	}
	out, err := h.Audit.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (h Handlers) ListAdminNotifications(c *gin.Context) { h.notificationsFor(c, "") }

func (h Handlers) MarkAdminNotificationRead(c *gin.Context) { h.markNotificationRead(c, "") }
