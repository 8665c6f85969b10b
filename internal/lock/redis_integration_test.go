//go:build integration

package lock

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIntegration_RedisLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()

	key := "test-" + uuid.NewString()
	unlock, err := r.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := r.Lock(waitCtx, key); err == nil {
		t.Fatal("second holder acquired a held lock")
	}

	unlock()
	again, err := r.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}

func TestIntegration_RedisLockOutlivesTTLWhileHeld(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()
	r.ttl = 300 * time.Millisecond

	key := "test-" + uuid.NewString()
	unlock, err := r.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Well past the TTL, the holder still owns the key.
	time.Sleep(time.Second)
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := r.Lock(waitCtx, key); err == nil {
		t.Fatal("lock expired while still held")
	}

	unlock()
	unlock()
	again, err := r.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
