package httpapi

import (
	"net/http"

	"dropship-platform/internal/domain"

	"github.com/gin-gonic/gin"
)

type chatMessageRequest struct {
	Message string `json:"message"`
}

type endChatRequest struct {
	Reason string `json:"reason"`
}

type assignRequest struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

/* ===================== USER SIDE ===================== */

func (h Handlers) GetMyChat(c *gin.Context) {
	ctx := c.Request.Context()
	msgs, err := h.Chat.Messages(ctx, callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := h.Chat.UnreadCount(ctx, callerID(c), domain.SenderUser)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"messages": msgs, "unread": unread}
	if sess, err := h.Chat.Session(ctx, callerID(c)); err == nil {
		resp["session"] = sess
	}
	c.JSON(http.StatusOK, resp)
}

func (h Handlers) SendMyChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Chat.SendUserMessage(c.Request.Context(), callerID(c), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) MarkMyChatRead(c *gin.Context) {
	n, err := h.Chat.MarkAsRead(c.Request.Context(), callerID(c), domain.SenderUser)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func (h Handlers) GetMyChatUnread(c *gin.Context) {
	n, err := h.Chat.UnreadCount(c.Request.Context(), callerID(c), domain.SenderUser)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (h Handlers) StartNewChat(c *gin.Context) {
	sess, err := h.Chat.StartNewConversation(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) EndMyChat(c *gin.Context) {
	var req endChatRequest
	_ = c.ShouldBindJSON(&req)
	sess, err := h.Chat.EndChat(c.Request.Context(), callerID(c), callerID(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

/* ===================== SUPPORT SIDE ===================== */

func (h Handlers) ListChats(c *gin.Context) {
	out, err := h.Chat.ListSessions(c.Request.Context(), domain.ChatStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h Handlers) GetChatMessages(c *gin.Context) {
	msgs, err := h.Chat.AdminMessages(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h Handlers) SendSupportMessage(c *gin.Context) {
	var req chatMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Chat.SendAdminMessage(c.Request.Context(), callerID(c), c.Param("user_id"), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) MarkChatRead(c *gin.Context) {
	n, err := h.Chat.MarkAsRead(c.Request.Context(), c.Param("user_id"), domain.SenderAdmin)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func (h Handlers) EndSupportChat(c *gin.Context) {
	var req endChatRequest
	_ = c.ShouldBindJSON(&req)
	sess, err := h.Chat.EndChat(c.Request.Context(), callerID(c), c.Param("user_id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) AssignChat(c *gin.Context) {
	var req assignRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Chat.Assign(c.Request.Context(), callerID(c), c.Param("user_id"), req.AgentID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) UnassignChat(c *gin.Context) {
	var req assignRequest
	_ = c.ShouldBindJSON(&req)
	sess, err := h.Chat.Unassign(c.Request.Context(), callerID(c), c.Param("user_id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
