package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSaveLoadDelete(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)
	client.Del(ctx, "cart:test-session")

	_, ok, err := adapter.Load(ctx, "cart:test-session")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected missing key")
	}

	if err := adapter.Save(ctx, "cart:test-session", []byte(`{"v":1,"lines":[]}`)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, ok, err := adapter.Load(ctx, "cart:test-session")
	if err != nil || !ok {
		t.Fatalf("expected stored value, got ok=%v err=%v", ok, err)
	}
	if string(data) != `{"v":1,"lines":[]}` {
		t.Errorf("unexpected value %q", data)
	}

	ttl := client.TTL(ctx, "cart:test-session").Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected ttl within a minute, got %v", ttl)
	}

	if err := adapter.Delete(ctx, "cart:test-session"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := adapter.Load(ctx, "cart:test-session"); ok {
		t.Error("expected key deleted")
	}

	// deleting a missing key is not an error
	if err := adapter.Delete(ctx, "cart:test-session"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfirmationGuard_TakeAndRelease(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, 0)
	key := "order-confirmation:cs_guard_test"
	client.Del(ctx, key)
	defer client.Del(ctx, key)

	taken, err := adapter.SetIdempotency(ctx, key)
	if err != nil || !taken {
		t.Fatalf("expected to take a fresh guard, got taken=%v err=%v", taken, err)
	}

	taken, err = adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taken {
		t.Error("a held guard must not be taken twice")
	}

	if ttl := client.TTL(ctx, key).Val(); ttl <= 0 || ttl > idempotencyKeyTTL {
		t.Errorf("expected guard to expire within %v, got %v", idempotencyKeyTTL, ttl)
	}

	// a failed send releases the guard so the next reconcile retries
	if err := adapter.ReleaseIdempotency(ctx, key); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if taken, _ = adapter.SetIdempotency(ctx, key); !taken {
		t.Error("expected guard to be free after release")
	}
}

func TestConfirmationGuard_ConcurrentReconciles(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, 0)
	key := "order-confirmation:cs_race_test"
	client.Del(ctx, key)
	defer client.Del(ctx, key)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			taken, err := adapter.SetIdempotency(ctx, key)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if taken {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := winners.Load(); n != 1 {
		t.Errorf("expected one reconcile to queue the email, got %d", n)
	}
}
