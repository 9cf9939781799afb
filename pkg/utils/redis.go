package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig is the client setup used by the API process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Timeout applies to dial, read and write; PoolSize bounds open conns.
	Timeout  time.Duration
	PoolSize int
}

// OpenRedis connects and PINGs. The client is shared by the notify queue,
// the realtime bridge, the rate limiter and the payout lock.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Lock is a held Redis lock. Token identifies the holder so a lock that
// expired and was re-taken by another request is never released by us.
type Lock struct {
	Key   string
	Token string
}

// releaseLockScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// TryLock takes key for ttl. ok is false when someone else holds it.
func TryLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (lock Lock, ok bool, err error) {
	if rdb == nil {
		return Lock{}, false, errors.New("redis client is nil")
	}
	if key == "" || ttl <= 0 {
		return Lock{}, false, fmt.Errorf("invalid lock %q ttl=%s", key, ttl)
	}

	token := uuid.NewString()
	ok, err = rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return Lock{}, false, err
	}
	return Lock{Key: key, Token: token}, true, nil
}

// Unlock releases l if it is still ours.
func Unlock(ctx context.Context, rdb *redis.Client, l Lock) error {
	if rdb == nil {
		return errors.New("redis client is nil")
	}
	if l.Key == "" {
		return nil
	}
	return releaseLockScript.Run(ctx, rdb, []string{l.Key}, l.Token).Err()
}
