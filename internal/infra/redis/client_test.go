package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromRedis(rdb, "test"), mr
}

func TestNewClient_UnreachableIsDisabled(t *testing.T) {
	c := NewClient(Config{URL: "redis://127.0.0.1:1/0", Timeout: 100 * time.Millisecond})
	if c.Enabled() {
		t.Fatal("expected disabled client")
	}
	ctx := context.Background()
	if c.Set(ctx, "k", 1, time.Minute) {
		t.Error("set on disabled client reported success")
	}
	var v int
	if c.Get(ctx, "k", &v) {
		t.Error("get on disabled client hit")
	}
	if c.ClearPattern(ctx, "*") != 0 || c.Delete(ctx, "k") {
		t.Error("disabled client removed keys")
	}
	if s := c.Stats(ctx); s.Enabled || s.Misses != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestNewClient_BadURLIsDisabled(t *testing.T) {
	if NewClient(Config{URL: "::not a url"}).Enabled() {
		t.Fatal("expected disabled client")
	}
}

func TestNewClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewClient(Config{URL: "redis://" + mr.Addr()})
	defer c.Close()
	if !c.Enabled() || c.Namespace() != "demandcast" {
		t.Fatalf("enabled=%t ns=%s", c.Enabled(), c.Namespace())
	}
}

func TestKey_Deterministic(t *testing.T) {
	c, _ := newTestClient(t)
	a := c.Key("prediction", []any{"Croissant", 7}, map[string]any{"b": 2, "a": 1})
	b := c.Key("prediction", []any{"Croissant", 7}, map[string]any{"a": 1, "b": 2})
	if a != b {
		t.Errorf("keys differ: %s vs %s", a, b)
	}
	if c.Key("prediction", []any{"Croissant", 8}, nil) == a {
		t.Error("different args produced same key")
	}
	if a[:len("test:prediction:")] != "test:prediction:" {
		t.Errorf("missing namespace/prefix: %s", a)
	}
}

func TestSetGetDelete(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Name  string
		Value float64
	}
	if !c.Set(ctx, "test:k", payload{"x", 1.5}, time.Minute) {
		t.Fatal("set failed")
	}
	var got payload
	if !c.Get(ctx, "test:k", &got) || got.Name != "x" || got.Value != 1.5 {
		t.Fatalf("got %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if c.Get(ctx, "test:k", &got) {
		t.Error("expired entry returned")
	}

	c.Set(ctx, "test:k2", 1, time.Minute)
	if !c.Delete(ctx, "test:k2") || c.Delete(ctx, "test:k2") {
		t.Error("delete semantics broken")
	}
}

func TestGet_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestClient(t)
	_ = mr.Set("test:bad", "{not json")
	var v map[string]any
	if c.Get(context.Background(), "test:bad", &v) {
		t.Error("corrupt entry decoded")
	}
	if c.Stats(context.Background()).Errors != 1 {
		t.Error("decode failure not counted")
	}
}

func TestClearPattern(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	for _, k := range []string{"test:prediction:a:1", "test:prediction:a:2", "test:model:a:1"} {
		c.Set(ctx, k, 1, time.Minute)
	}
	if n := c.ClearPattern(ctx, "test:prediction:*"); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if n := c.ClearPattern(ctx, "test:nothing:*"); n != 0 {
		t.Errorf("removed %d, want 0", n)
	}
}

func TestStats_HitRate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	c.Set(ctx, "test:a", 1, time.Minute)
	var v int
	c.Get(ctx, "test:a", &v)
	c.Get(ctx, "test:a", &v)
	c.Get(ctx, "test:a", &v)
	c.Get(ctx, "test:missing", &v)

	s := c.Stats(ctx)
	if s.Hits != 3 || s.Misses != 1 || s.HitRate != 75 {
		t.Errorf("stats = %+v", s)
	}
	if s.Keys != 1 {
		t.Errorf("keys = %d", s.Keys)
	}
}

func TestParseInfo(t *testing.T) {
	fields := parseInfo("# Clients\r\nconnected_clients:3\r\n\r\n# Memory\r\nused_memory_human:1.02M\r\n")
	if fields["connected_clients"] != "3" || fields["used_memory_human"] != "1.02M" {
		t.Errorf("fields = %v", fields)
	}
}
