package storage

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"conference-central/internal/domain"
)

func TestRedisCacheSetGetDelete(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache(client, "cc:")
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, domain.AnnouncementKey); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, domain.AnnouncementKey, "hello"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := mr.Get("cc:" + domain.AnnouncementKey); err != nil || got != "hello" {
		t.Fatalf("expected prefixed key in redis, got %q %v", got, err)
	}
	if ttl := mr.TTL("cc:" + domain.AnnouncementKey); ttl != 0 {
		t.Fatalf("expected no expiry, got %v", ttl)
	}
	v, ok, err := c.Get(ctx, domain.AnnouncementKey)
	if err != nil || !ok || v != "hello" {
		t.Fatalf("unexpected get %q %v %v", v, ok, err)
	}
	if err := c.Delete(ctx, domain.AnnouncementKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("cc:" + domain.AnnouncementKey) {
		t.Fatal("expected key removed")
	}
}

func TestRedisCacheSurfacesErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	if _, _, err := NewRedisCache(client, "").Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestNewRedisClientAcceptsURLAndAddr(t *testing.T) {
	if got := NewRedisClient("redis://localhost:6380/2").Options(); got.Addr != "localhost:6380" || got.DB != 2 {
		t.Fatalf("unexpected url options %+v", got)
	}
	if got := NewRedisClient("cache:6379").Options(); got.Addr != "cache:6379" {
		t.Fatalf("unexpected addr %q", got.Addr)
	}
	got := NewRedisClient("example.redis.cache.windows.net:6380,password=secret,ssl=True,abortConnect=False").Options()
	if got.Addr != "example.redis.cache.windows.net:6380" || got.Password != "secret" || got.TLSConfig == nil {
		t.Fatalf("unexpected azure options addr=%q password=%q tls=%v", got.Addr, got.Password, got.TLSConfig != nil)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v")
	if v, ok, _ := c.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("unexpected %q %v", v, ok)
	}
	_ = c.Delete(ctx, "k")
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
}
