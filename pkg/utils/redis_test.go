package utils

import (
	"context"
	"testing"
	"time"
)

func TestTryLock_RejectsBadArgs(t *testing.T) {
	ctx := context.Background()
	if _, _, err := TryLock(ctx, nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := Unlock(ctx, nil, Lock{Key: "k"}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}
