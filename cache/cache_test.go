package cache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"telemetry-server/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestMemoryStoreExpiresWithClock(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(fake)

	if err := store.Set(ctx, "k", []byte("v"), 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	fake.Advance(4*time.Minute + 59*time.Second)
	if v, ok, _ := store.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected hit before expiry, got %q %v", v, ok)
	}

	fake.Advance(time.Second)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expected miss at expiry")
	}
}

func TestMemoryStoreNoTTLAndDelete(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Now())
	store := NewMemoryStore(fake)

	_ = store.Set(ctx, "a", []byte("1"), 0)
	_ = store.Set(ctx, "b", []byte("2"), time.Second)
	fake.Advance(24 * time.Hour)

	if _, ok, _ := store.Get(ctx, "a"); !ok {
		t.Error("entry without ttl should not expire")
	}

	stats, _ := store.Stats(ctx)
	if stats["total_keys"] != 1 || stats["purged_stale"] != 1 {
		t.Errorf("stats = %v", stats)
	}

	_ = store.Delete(ctx, "a", "missing")
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Error("expected deleted key to miss")
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	buf := []byte("abc")
	_ = store.Set(ctx, "k", buf, 0)
	buf[0] = 'z'

	got, _, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
	got[1] = 'z'
	again, _, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased stored buffer: %q", again)
	}
}

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestTypedRoundTripAndCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	var logs bytes.Buffer
	typed := NewTyped[sample](store, slog.New(slog.NewTextHandler(&logs, nil)))

	if _, ok, err := typed.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := typed.Set(ctx, "s", sample{Name: "x", Count: 2}, time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := typed.Get(ctx, "s")
	if err != nil || !ok || got != (sample{Name: "x", Count: 2}) {
		t.Fatalf("Get = %+v %v %v", got, ok, err)
	}

	_ = store.Set(ctx, "s", []byte("{not json"), time.Minute)
	got, ok, err = typed.Get(ctx, "s")
	if ok || err != nil || got != (sample{}) {
		t.Fatalf("corrupt entry should be a miss, got %+v %v %v", got, ok, err)
	}
	if !strings.Contains(logs.String(), "discarding unreadable cache entry") {
		t.Errorf("expected a log line for the corrupt entry, got %q", logs.String())
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)

	if _, ok, err := store.Get(ctx, "nope"); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}

	if err := store.Set(ctx, "k", []byte(`{"a":1}`), 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	v, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(v) != `{"a":1}` {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	if ttl := mr.TTL("k"); ttl != 5*time.Minute {
		t.Errorf("ttl = %v", ttl)
	}

	mr.FastForward(5 * time.Minute)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("expected key to expire")
	}

	_ = store.Set(ctx, "a", []byte("1"), 0)
	_ = store.Set(ctx, "b", []byte("2"), 0)
	stats, err := store.Stats(ctx)
	if err != nil || stats["total_keys"] != int64(2) {
		t.Errorf("stats = %v, %v", stats, err)
	}
	if err := store.Delete(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("a") || mr.Exists("b") {
		t.Error("expected keys deleted")
	}
}

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)
	mr.Close()

	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatal("expected error from closed redis")
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTypedOverRedisTreatsGarbageAsMiss(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)
	typed := NewTyped[[]sample](store, discardLogger())

	if err := mr.Set("list", "garbage"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := typed.Get(ctx, "list"); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
}
