package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedis struct {
	setNXFn func(key string, expiration time.Duration) (bool, error)
	ttlFn   func(key string) (time.Duration, error)
	delFn   func(keys ...string) (int64, error)
}

func (m *mockRedis) SetNX(_ context.Context, key string, _ interface{}, expiration time.Duration) *redis.BoolCmd {
	ok, err := m.setNXFn(key, expiration)
	return redis.NewBoolResult(ok, err)
}

func (m *mockRedis) TTL(_ context.Context, key string) *redis.DurationCmd {
	d, err := m.ttlFn(key)
	return redis.NewDurationResult(d, err)
}

func (m *mockRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	n, err := m.delFn(keys...)
	return redis.NewIntResult(n, err)
}

func TestRedisCooldown_FirstRequestAllowed(t *testing.T) {
	var gotKey string
	var gotTTL time.Duration
	c := NewRedisCooldown(&mockRedis{
		setNXFn: func(key string, expiration time.Duration) (bool, error) {
			gotKey, gotTTL = key, expiration
			return true, nil
		},
	})

	ok, wait, err := c.Allow(context.Background(), "verification:a1", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ok || wait != 0 {
		t.Errorf("Allow() = %v, %v", ok, wait)
	}
	if gotKey != "estadias:cooldown:verification:a1" || gotTTL != time.Minute {
		t.Errorf("SETNX %q %v", gotKey, gotTTL)
	}
}

func TestRedisCooldown_WithinWindow_ReturnsRemaining(t *testing.T) {
	c := NewRedisCooldown(&mockRedis{
		setNXFn: func(string, time.Duration) (bool, error) { return false, nil },
		ttlFn:   func(string) (time.Duration, error) { return 42 * time.Second, nil },
	})

	ok, wait, err := c.Allow(context.Background(), "k", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok || wait != 42*time.Second {
		t.Errorf("Allow() = %v, %v", ok, wait)
	}
}

func TestRedisCooldown_KeyWithoutExpiry_UsesFullWindow(t *testing.T) {
	c := NewRedisCooldown(&mockRedis{
		setNXFn: func(string, time.Duration) (bool, error) { return false, nil },
		ttlFn:   func(string) (time.Duration, error) { return -1, nil },
	})

	_, wait, err := c.Allow(context.Background(), "k", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want 1m", wait)
	}
}

func TestRedisCooldown_RedisError(t *testing.T) {
	redisErr := errors.New("connection refused")
	c := NewRedisCooldown(&mockRedis{
		setNXFn: func(string, time.Duration) (bool, error) { return false, redisErr },
	})

	if _, _, err := c.Allow(context.Background(), "k", time.Minute); !errors.Is(err, redisErr) {
		t.Errorf("expected wrapped redis error, got %v", err)
	}
}

func TestRedisCooldown_Release(t *testing.T) {
	var deleted []string
	c := NewRedisCooldown(&mockRedis{
		delFn: func(keys ...string) (int64, error) {
			deleted = append(deleted, keys...)
			return 1, nil
		},
	})

	if err := c.Release(context.Background(), "verification:a1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "estadias:cooldown:verification:a1" {
		t.Errorf("DEL %v", deleted)
	}
}

func TestRedisCooldown_ReleaseError(t *testing.T) {
	redisErr := errors.New("connection refused")
	c := NewRedisCooldown(&mockRedis{
		delFn: func(...string) (int64, error) { return 0, redisErr },
	})

	if err := c.Release(context.Background(), "k"); !errors.Is(err, redisErr) {
		t.Errorf("expected wrapped redis error, got %v", err)
	}
}

func TestMemoryCooldown_Release(t *testing.T) {
	c := NewMemoryCooldown()
	ctx := context.Background()

	if ok, _, _ := c.Allow(ctx, "a", time.Minute); !ok {
		t.Fatal("first request should be allowed")
	}
	if err := c.Release(ctx, "a"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok, _, _ := c.Allow(ctx, "a", time.Minute); !ok {
		t.Error("request after release should be allowed")
	}
}

func TestMemoryCooldown(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCooldown()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _, _ := c.Allow(ctx, "a", time.Minute); !ok {
		t.Fatal("first request should be allowed")
	}

	now = now.Add(20 * time.Second)
	ok, wait, _ := c.Allow(ctx, "a", time.Minute)
	if ok || wait != 40*time.Second {
		t.Errorf("second request = %v, %v; want false, 40s", ok, wait)
	}
	if ok, _, _ := c.Allow(ctx, "b", time.Minute); !ok {
		t.Error("other keys should be independent")
	}

	now = now.Add(40 * time.Second)
	if ok, _, _ := c.Allow(ctx, "a", time.Minute); !ok {
		t.Error("request after the window should be allowed")
	}
}
