package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Fatalf("length prefix must separate parts")
	}
	if Key("candidate", "v1", "text") != Key("candidate", "v1", "text") {
		t.Fatalf("key must be deterministic")
	}
	if len(Key("x")) != 64 {
		t.Fatalf("expected hex sha256 key")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	value := []byte("payload")
	if err := m.Set(ctx, "k", value); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'X'

	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got) != "payload" {
		t.Fatalf("expected stored copy, got %q ok=%v err=%v", got, ok, err)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestRedis(t *testing.T) {
	url := os.Getenv("RESUME_MATCHER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RESUME_MATCHER_TEST_REDIS_URL is not set")
	}

	ctx := context.Background()
	r, err := NewRedis(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer r.Close()

	key := Key("test", time.Now().String())
	if _, ok, err := r.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := r.Set(ctx, key, []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := r.Get(ctx, key)
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("expected hit, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not-a-url", time.Minute); err == nil {
		t.Fatalf("expected parse error")
	}
}
