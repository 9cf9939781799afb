package logger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ginLoggerKey    = "logger"
)

// quietPaths are probed constantly; their access lines go to debug.
var quietPaths = map[string]struct{}{"/healthz": {}}

// Middleware assigns the request id, stores a request logger on both the gin
// and request contexts, and writes one access line when the handler returns.
// 5xx responses log at error and 4xx at warn.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)
		setRequestLogger(c, l.With(slog.String("request_id", rid)))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError || len(c.Errors) > 0:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		default:
			if _, ok := quietPaths[path]; ok {
				level = slog.LevelDebug
			}
		}
		// Enrich may have replaced the logger after auth ran.
		FromGin(c).LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}

// Enrich adds attrs to the request logger for the rest of the request.
func Enrich(c *gin.Context, attrs ...any) {
	setRequestLogger(c, FromGin(c).With(attrs...))
}

func setRequestLogger(c *gin.Context, l *slog.Logger) {
	c.Set(ginLoggerKey, l)
	c.Request = c.Request.WithContext(With(c.Request.Context(), l))
}

// FromGin returns the request logger, or slog.Default() outside Middleware.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
