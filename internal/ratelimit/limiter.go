// Package ratelimit caps how often a user may hit an expensive endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter counts hits in fixed windows.
type Limiter interface {
	// Allow records one hit for key. When the limit is reached it returns
	// false and how long until the window resets.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

var windowScript = redis.NewScript(`
-- KEYS[1] = window counter key
-- ARGV[1] = window_ms (int)
--
-- Returns {count, pttl_ms}.
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter { return &RedisLimiter{rdb: rdb} }

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	res, err := windowScript.Run(ctx, l.rdb, []string{"ratelimit:" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}
	if res[0] > int64(limit) {
		return false, time.Duration(res[1]) * time.Millisecond, nil
	}
	return true, 0, nil
}

// MemoryLimiter is a single-process Limiter for tests and local runs.
type MemoryLimiter struct {
	mu      sync.Mutex
	clock   func() time.Time
	windows map[string]memWindow
}

type memWindow struct {
	count int
	reset time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{clock: time.Now, windows: map[string]memWindow{}}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	w := l.windows[key]
	if !now.Before(w.reset) {
		w = memWindow{reset: now.Add(window)}
	}
	w.count++
	l.windows[key] = w
	if w.count > limit {
		return false, w.reset.Sub(now), nil
	}
	return true, 0, nil
}

// Middleware limits the authenticated user to limit requests per window on
// the routes it guards. Limiter failures let the request through.
func Middleware(l Limiter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.GetString("user_id")
		if c.GetString("user_id") == "" {
			key = scope + ":ip:" + c.ClientIP()
		}
		ok, retry, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.FromGin(c).Warn("rate limiter unavailable", slog.String("scope", scope), slog.Any("err", err))
			c.Next()
			return
		}
		if !ok {
			secs := int(retry.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": apperr.ErrRateLimited.Message,
				"code":  apperr.ErrRateLimited.Code,
			})
			return
		}
		c.Next()
	}
}
