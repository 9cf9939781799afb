package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Aliases hands out the "Customer-XXXX" display name agents see instead of
// the customer's real name.
type Aliases interface {
	Alias(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
}

func newAlias() string {
	return "Customer-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
}

type RedisAliases struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisAliases(rdb *redis.Client, ttl time.Duration) *RedisAliases {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisAliases{rdb: rdb, ttl: ttl}
}

func aliasKey(userID string) string { return "chat:alias:" + userID }

func (a *RedisAliases) Alias(ctx context.Context, userID string) (string, error) {
	key := aliasKey(userID)
	got, err := a.rdb.Get(ctx, key).Result()
	if err == nil {
		return got, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("alias get: %w", err)
	}
	// Another instance may win the race; read back whatever was stored.
	if err := a.rdb.SetNX(ctx, key, newAlias(), a.ttl).Err(); err != nil {
		return "", fmt.Errorf("alias set: %w", err)
	}
	return a.rdb.Get(ctx, key).Result()
}

func (a *RedisAliases) Delete(ctx context.Context, userID string) error {
	return a.rdb.Del(ctx, aliasKey(userID)).Err()
}

type MemoryAliases struct {
	mu    sync.Mutex
	names map[string]string
}

func NewMemoryAliases() *MemoryAliases {
	return &MemoryAliases{names: map[string]string{}}
}

func (a *MemoryAliases) Alias(ctx context.Context, userID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.names[userID]; ok {
		return n, nil
	}
	n := newAlias()
	a.names[userID] = n
	return n, nil
}

func (a *MemoryAliases) Delete(ctx context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.names, userID)
	return nil
}
