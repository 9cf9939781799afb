package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"dropship-platform/internal/apperr"
	"dropship-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusOf maps the error taxonomy onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPolicy:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRemote:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError aborts with {"error", "code"}. Unclassified errors are logged and
// reported with a generic message.
func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", slog.String("err", err.Error()))
		msg = "internal error"
	} else if status == http.StatusBadGateway {
		logger.FromGin(c).Warn("upstream failed", slog.String("err", err.Error()))
		var e *apperr.Error
		if errors.As(err, &e) {
			msg = e.Message + " unavailable"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": apperr.CodeOf(err)})
}
