package httpapi

import (
	"net/http"
	"time"

	"dropship-platform/internal/domain"
	"dropship-platform/internal/orders"
	"dropship-platform/internal/payout"
	"dropship-platform/internal/reporting"
	"dropship-platform/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

/* ===================== WALLET ===================== */

func (h Handlers) GetWallet(c *gin.Context) {
	r, err := queryRange(c, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := h.Wallet.Statement(c.Request.Context(), callerID(c), r.From, r.To)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) GetWalletSummary(c *gin.Context) {
	r, err := queryRange(c, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.Reporting.WalletSummary(c.Request.Context(), reporting.WalletSummaryRequest{UserID: callerID(c), Range: r})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

/* ===================== POSTPAID ===================== */

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h Handlers) GetPostpaidStatus(c *gin.Context) {
	st, err := h.Postpaid.GetStatus(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) ListPostpaidTransactions(c *gin.Context) {
	txs, err := h.Postpaid.Transactions(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h Handlers) RepayPostpaid(c *gin.Context) {
	var req amountRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Postpaid.Repay(c.Request.Context(), callerID(c), req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

/* ===================== ORDERS ===================== */

func (h Handlers) CreateOrder(c *gin.Context) {
	var req orders.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.Orders.Create(c.Request.Context(), callerID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h Handlers) ListMyOrders(c *gin.Context) {
	out, err := h.Orders.List(c.Request.Context(), store.OrderFilter{
		UserID: callerID(c),
		Status: domain.OrderStatus(c.Query("status")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h Handlers) GetMyOrder(c *gin.Context) {
	o, err := h.Orders.Get(c.Request.Context(), callerID(c), c.Param("order_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type paymentProofRequest struct {
	ProofURL string `json:"payment_proof_url"`
}

func (h Handlers) SubmitPaymentProof(c *gin.Context) {
	var req paymentProofRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.Orders.SubmitPaymentProof(c.Request.Context(), callerID(c), c.Param("order_id"), req.ProofURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h Handlers) ChargeOrderToPostpaid(c *gin.Context) {
	o, st, err := h.Postpaid.ChargeOrder(c.Request.Context(), callerID(c), c.Param("order_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o, "postpaid": st})
}

/* ===================== PAYOUTS ===================== */

func (h Handlers) CreatePayout(c *gin.Context) {
	var req payout.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Payouts.Create(c.Request.Context(), callerID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h Handlers) ListMyPayouts(c *gin.Context) {
	out, err := h.Payouts.List(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": out})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) CancelPayout(c *gin.Context) {
	var req cancelRequest
	// Body is optional.
	_ = c.ShouldBindJSON(&req)
	p, err := h.Payouts.Cancel(c.Request.Context(), callerID(c), c.Param("payout_id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) GetPayoutSettings(c *gin.Context) {
	p, err := h.Settings.Payout(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

/* ===================== NOTIFICATIONS ===================== */

// notificationsFor lists in-app notifications. An empty userID selects the admin audience.
func (h Handlers) notificationsFor(c *gin.Context, userID string) {
	out, err := h.Notifications.List(c.Request.Context(), userID, queryLimit(c, 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

func (h Handlers) markNotificationRead(c *gin.Context, userID string) {
	if err := h.Notifications.MarkRead(c.Request.Context(), userID, c.Param("notification_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ListMyNotifications(c *gin.Context) { h.notificationsFor(c, callerID(c)) }

func (h Handlers) MarkMyNotificationRead(c *gin.Context) { h.markNotificationRead(c, callerID(c)) }
