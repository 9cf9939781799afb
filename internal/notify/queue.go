package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is the outbox transport. Pop blocks until an intent is available or ctx ends.
type Queue interface {
	Push(ctx context.Context, in Intent) error
	Pop(ctx context.Context) (Intent, error)
}

var ErrQueueFull = errors.New("notify: queue full")

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	ch chan Intent
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan Intent, size)}
}

func (q *MemoryQueue) Push(ctx context.Context, in Intent) error {
	select {
	case q.ch <- in:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (Intent, error) {
	select {
	case in := <-q.ch:
		return in, nil
	case <-ctx.Done():
		return Intent{}, ctx.Err()
	}
}

// Len reports queued intents.
func (q *MemoryQueue) Len() int { return len(q.ch) }

// RedisQueue is a list-backed queue shared by every API instance (LPUSH + BRPOP).
type RedisQueue struct {
	rdb  *redis.Client
	key  string
	wait time.Duration
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "notify:outbox"
	}
	return &RedisQueue{rdb: rdb, key: key, wait: 5 * time.Second}
}

func (q *RedisQueue) Push(ctx context.Context, in Intent) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (Intent, error) {
	for {
		res, err := q.rdb.BRPop(ctx, q.wait, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return Intent{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Intent{}, ctx.Err()
			}
			return Intent{}, err
		}
		// res is [key, value].
		if len(res) != 2 {
			return Intent{}, fmt.Errorf("notify: unexpected BRPOP reply %v", res)
		}
		var in Intent
		if err := json.Unmarshal([]byte(res[1]), &in); err != nil {
			return Intent{}, fmt.Errorf("notify: decode intent: %w", err)
		}
		return in, nil
	}
}
