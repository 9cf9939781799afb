package payout

import (
	"context"
	"log/slog"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/pkg/logger"
	"dropship-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Guard rejects a second money request for the same user while one is in flight.
type Guard interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

// SlotGuard holds one Redis lock per user so the guard spans API instances.
// The TTL frees a lock leaked by a crashed process.
type SlotGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSlotGuard(rdb *redis.Client, ttl time.Duration) *SlotGuard {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &SlotGuard{rdb: rdb, ttl: ttl}
}

func (g *SlotGuard) Acquire(ctx context.Context, userID string) (func(), error) {
	lock, ok, err := utils.TryLock(ctx, g.rdb, "payout:inflight:"+userID, g.ttl)
	if err != nil {
		return nil, apperr.Remote("redis", err)
	}
	if !ok {
		return nil, apperr.ErrInFlight
	}
	return func() {
		// The request context may already be cancelled.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := utils.Unlock(relCtx, g.rdb, lock); err != nil {
			logger.From(ctx).Warn("payout lock release failed", slog.String("user_id", userID), slog.Any("err", err))
		}
	}, nil
}

type noGuard struct{}

func (noGuard) Acquire(context.Context, string) (func(), error) { return func() {}, nil }
