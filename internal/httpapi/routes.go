package httpapi

import (
	"dropship-platform/internal/rbac"
	"dropship-platform/internal/wallet"

	"github.com/gin-gonic/gin"
)

// Register mounts the portal, dashboard and support routes on v1.
// v1 must already carry the access token middleware.
func (h Handlers) Register(v1 *gin.RouterGroup) {
	v1.Use(ClientIP())
	v1.GET("/me", h.Me)
	v1.GET("/settings/payout", h.GetPayoutSettings)

	// PORTAL routes (dropshipper).
	portal := v1.Group("")
	portal.Use(rbac.RequireDropshipper(), wallet.RequireProfile(h.Wallet))
	{
		portal.GET("/wallet", h.GetWallet)
		portal.GET("/wallet/summary", h.GetWalletSummary)

		portal.GET("/postpaid", h.GetPostpaidStatus)
		portal.GET("/postpaid/transactions", h.ListPostpaidTransactions)
		portal.POST("/postpaid/repay", h.RepayPostpaid)

		portal.POST("/orders", h.CreateOrder)
		portal.GET("/orders", h.ListMyOrders)
		portal.GET("/orders/:order_id", h.GetMyOrder)
		portal.POST("/orders/:order_id/payment-proof", h.SubmitPaymentProof)
		portal.POST("/orders/:order_id/postpaid", h.ChargeOrderToPostpaid)

		portal.POST("/payouts", h.limit("payouts", h.RateLimit.Payouts), h.CreatePayout)
		portal.GET("/payouts", h.ListMyPayouts)
		portal.POST("/payouts/:payout_id/cancel", h.CancelPayout)

		portal.GET("/chat", h.GetMyChat)
		portal.POST("/chat/messages", h.limit("chat", h.RateLimit.Chat), h.SendMyChatMessage)
		portal.POST("/chat/read", h.MarkMyChatRead)
		portal.GET("/chat/unread", h.GetMyChatUnread)
		portal.POST("/chat/new", h.StartNewChat)
		portal.POST("/chat/end", h.EndMyChat)

		portal.GET("/notifications", h.ListMyNotifications)
		portal.POST("/notifications/:notification_id/read", h.MarkMyNotificationRead)
	}

	// SUPPORT routes. Support agents and admins share the chat dashboard.
	support := v1.Group("/admin/chats")
	support.Use(rbac.RequireStaff())
	{
		support.GET("", h.ListChats)
		support.GET("/:user_id/messages", h.GetChatMessages)
		support.POST("/:user_id/messages", h.SendSupportMessage)
		support.POST("/:user_id/read", h.MarkChatRead)
		support.POST("/:user_id/end", h.EndSupportChat)
	}

	// ADMIN routes
	admin := v1.Group("/admin")
	admin.Use(rbac.RequireAdmin())
	{
		admin.POST("/chats/:user_id/assign", h.AssignChat)
		admin.POST("/chats/:user_id/unassign", h.UnassignChat)

		admin.POST("/users", h.ProvisionUser)
		admin.GET("/users/:user_id/wallet", h.GetUserWallet)
		admin.POST("/users/:user_id/wallet/adjust", h.AdjustUserWallet)
		admin.GET("/users/:user_id/wallet/summary", h.GetUserWalletSummary)

		admin.GET("/users/:user_id/postpaid", h.GetUserPostpaid)
		admin.PATCH("/users/:user_id/postpaid", h.UpdateUserPostpaid)
		admin.POST("/users/:user_id/postpaid/adjust", h.AdjustUserPostpaid)
		admin.GET("/users/:user_id/postpaid/transactions", h.ListUserPostpaidTransactions)
		admin.GET("/users/:user_id/postpaid/summary", h.GetUserDuesSummary)
		admin.POST("/postpaid/reminders", h.SendDueReminders)

		admin.GET("/payouts", h.ListPayouts)
		admin.POST("/payouts/:payout_id/process", h.ProcessPayout)

		admin.GET("/orders", h.ListOrders)
		admin.POST("/orders/:order_id/status", h.UpdateOrderStatus)

		admin.GET("/settings", h.GetSettings)
		admin.PUT("/settings/:key", h.UpdateSettings)

		admin.GET("/audit", h.ListAuditEvents)
		admin.GET("/notifications", h.ListAdminNotifications)
		admin.POST("/notifications/:notification_id/read", h.MarkAdminNotificationRead)
	}
}
