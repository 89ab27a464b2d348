//go:build !integration

package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	red "telegram-media-generation/internal/infra/redis"
)

type fakeRedis struct {
	counts  map[string]int64
	expires map[string]time.Duration
	incrErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) Ping(context.Context) error { return nil }

func (f *fakeRedis) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (f *fakeRedis) Get(context.Context, string) (string, error) { return "", nil }

func (f *fakeRedis) Incr(_ context.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRedis) Expire(_ context.Context, key string, d time.Duration) error {
	f.expires[key] = d
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.counts, k)
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRateLimiterAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to the limit", func(t *testing.T) {
		fake := newFakeRedis()
		rl := red.NewRateLimiter(fake)
		key := red.UserActionKey(1, "generation_start")

		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, key, 3, time.Minute)
			if err != nil || !ok {
				t.Fatalf("attempt %d = (%v, %v), want allowed", i+1, ok, err)
			}
		}
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || ok {
			t.Fatalf("over-limit = (%v, %v), want refused", ok, err)
		}
	})

	t.Run("sets the window on first hit only", func(t *testing.T) {
		fake := newFakeRedis()
		rl := red.NewRateLimiter(fake)
		key := red.UserActionKey(2, "generation_start")

		_, _ = rl.Allow(ctx, key, 10, time.Minute)
		if fake.expires[key] != time.Minute {
			t.Fatalf("expire = %v, want 1m", fake.expires[key])
		}
		fake.expires[key] = 0
		_, _ = rl.Allow(ctx, key, 10, time.Minute)
		if fake.expires[key] != 0 {
			t.Fatal("expire reset on a non-first hit")
		}
	})

	t.Run("surfaces backend errors", func(t *testing.T) {
		fake := newFakeRedis()
		fake.incrErr = errors.New("connection refused")
		rl := red.NewRateLimiter(fake)

		// The caller treats an error as fail-open; Allow itself just reports.
		if _, err := rl.Allow(ctx, "k", 10, time.Minute); err == nil {
			t.Fatal("backend error swallowed")
		}
	})

	t.Run("keys are per user and action", func(t *testing.T) {
		a := red.UserActionKey(1, "generation_start")
		b := red.UserActionKey(2, "generation_start")
		c := red.UserActionKey(1, "topup")
		if a == b || a == c {
			t.Fatalf("keys collide: %q %q %q", a, b, c)
		}
	})
}
