package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client)
	t.Cleanup(func() { c.Close() })

	return c, mr
}

// exercise runs the shared contract every Cache implementation must satisfy.
func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	// Miss on unknown key
	_, ok, err := c.Get(ctx, "member:1:1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Fatal("expected miss on unknown key")
	}

	// Set then hit
	if err := c.Set(ctx, "member:1:1", []byte(`{"role":"owner"}`), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	value, ok, err := c.Get(ctx, "member:1:1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(value) != `{"role":"owner"}` {
		t.Fatalf("unexpected cached value: %s", value)
	}

	// Delete removes the key
	if err := c.Delete(ctx, "member:1:1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "member:1:1"); ok {
		t.Fatal("expected miss after delete")
	}

	// Deleting a missing key is not an error
	if err := c.Delete(ctx, "member:9:9"); err != nil {
		t.Fatalf("Delete of missing key should succeed: %v", err)
	}

	// Prefix deletion removes only matching keys
	c.Set(ctx, "perms:inherited:7:10", []byte("a"), time.Minute)
	c.Set(ctx, "perms:inherited:7:11", []byte("b"), time.Minute)
	c.Set(ctx, "perms:inherited:70:10", []byte("c"), time.Minute)
	if err := c.DeletePrefix(ctx, TenantPermissionsPrefix(7)); err != nil {
		t.Fatalf("DeletePrefix error: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "perms:inherited:7:10"); ok {
		t.Fatal("prefix delete should remove tenant 7 entries")
	}
	if _, ok, _ := c.Get(ctx, "perms:inherited:7:11"); ok {
		t.Fatal("prefix delete should remove tenant 7 entries")
	}
	if _, ok, _ := c.Get(ctx, "perms:inherited:70:10"); !ok {
		t.Fatal("prefix delete must not remove tenant 70 entries")
	}
}

func TestRedisCache(t *testing.T) {
	c, _ := newTestRedisCache(t)
	exercise(t, c)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "member:1:2", []byte("x"), 10*time.Second); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	mr.FastForward(11 * time.Second)

	if _, ok, _ := c.Get(ctx, "member:1:2"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCache_DefaultTTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	// ttl <= 0 falls back to DefaultTTL rather than storing forever
	if err := c.Set(ctx, "member:2:2", []byte("x"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if mr.TTL("member:2:2") != DefaultTTL {
		t.Fatalf("TTL = %v, want %v", mr.TTL("member:2:2"), DefaultTTL)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(128, time.Minute)
	defer c.Close()
	exercise(t, c)
}

func TestNopCache(t *testing.T) {
	c := NewNop()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("nop cache must never hit")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := c.DeletePrefix(ctx, "k"); err != nil {
		t.Fatalf("DeletePrefix error: %v", err)
	}
}

func TestKeys(t *testing.T) {
	if got := MemberKey(7, 42); got != "member:7:42" {
		t.Errorf("MemberKey = %q", got)
	}
	if got := InheritedPermissionsKey(7, 42); got != "perms:inherited:7:42" {
		t.Errorf("InheritedPermissionsKey = %q", got)
	}
	if got := ClientKey("hmd_ci_abc"); got != "client:hmd_ci_abc" {
		t.Errorf("ClientKey = %q", got)
	}
}
