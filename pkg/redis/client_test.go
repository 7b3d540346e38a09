package redis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	scripts := &scriptedStore{data: mock}
	client := &Client{store: mock, scripts: scripts}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "login:ip:10.0.0.1", 2, time.Minute)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if allowed != want || count != int64(i+1) {
			t.Fatalf("call %d: allowed=%v count=%d", i, allowed, count)
		}
	}
	key := client.RateLimitKey("login:ip:10.0.0.1")
	if got := scripts.windows[key]; got != time.Minute.Milliseconds() {
		t.Fatalf("expected window set once to 60000ms, got %d", got)
	}
	if scripts.expires != 1 {
		t.Fatalf("window must only be armed on the first hit, armed %d times", scripts.expires)
	}
}

func TestFixedWindowAllowRequiresScripts(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, _, err := client.FixedWindowAllow(context.Background(), "s", 1, time.Second); err == nil {
		t.Fatal("expected error without a script runner")
	}
}

func TestExistsAndDel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.WebhookEventKey("stripe", "evt_1")

	exists, err := client.Exists(ctx, key)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Fatalf("expected key to be absent")
	}

	if err := client.Set(ctx, key, "1", time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	exists, err = client.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected key to exist, exists=%v err=%v", exists, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after del, got %v", err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.Exists(context.Background(), "k"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "bs:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "bs:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.AccessSessionKey("jti-1"); got != "bs:session:access:jti-1" {
		t.Fatalf("unexpected session key %s", got)
	}
	if got := client.WebhookEventKey("stripe", "evt_1"); got != "bs:webhook:stripe:evt_1" {
		t.Fatalf("unexpected webhook key %s", got)
	}
	if got := client.LockKey(" "); got != "bs:lock" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// scriptedStore runs the package scripts against mockCmdable, keyed by
// script hash.
type scriptedStore struct {
	data    *mockCmdable
	evals   int
	expires int
	windows map[string]int64
}

func (s *scriptedStore) run(sha string, keys []string, args []any) *redis.Cmd {
	s.evals++
	switch sha {
	case compareAndDelete.Hash():
		if s.data.data[keys[0]] != fmt.Sprint(args[0]) {
			return redis.NewCmdResult(int64(0), nil)
		}
		delete(s.data.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	case fixedWindow.Hash():
		count, _ := strconv.ParseInt(s.data.data[keys[0]], 10, 64)
		count++
		s.data.data[keys[0]] = strconv.FormatInt(count, 10)
		if count == 1 {
			if s.windows == nil {
				s.windows = make(map[string]int64)
			}
			s.windows[keys[0]] = args[0].(int64)
			s.expires++
		}
		return redis.NewCmdResult(count, nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (s *scriptedStore) Eval(_ context.Context, src string, keys []string, args ...any) *redis.Cmd {
	return s.run(redis.NewScript(src).Hash(), keys, args)
}

func (s *scriptedStore) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return s.run(sha, keys, args)
}

func (s *scriptedStore) EvalRO(ctx context.Context, src string, keys []string, args ...any) *redis.Cmd {
	return s.Eval(ctx, src, keys, args...)
}

func (s *scriptedStore) EvalShaRO(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return s.run(sha, keys, args)
}

func (s *scriptedStore) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (s *scriptedStore) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestDelIfValueOnlyDeletesMatchingOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	scripts := &scriptedStore{data: mock}
	client := &Client{store: mock, scripts: scripts}
	key := client.LockKey("cron-worker:dev")
	mock.data[key] = "owner-b"

	deleted, err := client.DelIfValue(ctx, key, "owner-a")
	if err != nil {
		t.Fatalf("del if value: %v", err)
	}
	if deleted {
		t.Fatal("mismatched owner must not delete")
	}
	if mock.data[key] != "owner-b" {
		t.Fatal("key should survive a mismatched delete")
	}

	deleted, err = client.DelIfValue(ctx, key, "owner-b")
	if err != nil || !deleted {
		t.Fatalf("expected delete, deleted=%v err=%v", deleted, err)
	}
	if _, ok := mock.data[key]; ok {
		t.Fatal("key should be gone")
	}
	if scripts.evals != 2 {
		t.Fatalf("expected 2 script runs, got %d", scripts.evals)
	}
}

func TestDelIfValueRequiresScripts(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := client.DelIfValue(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected error without a script runner")
	}
}
