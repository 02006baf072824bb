package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlotLocker(client, 5*time.Second), mr
}

func TestWithSlotLock_RunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	key := "doc-1:2025-06-01:09:00"

	ran := false
	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		if !mr.Exists("lock:slot:" + key) {
			t.Error("lock key should exist while fn runs")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("fn was not called")
	}
	if mr.Exists("lock:slot:" + key) {
		t.Error("lock key should be released after fn returns")
	}
}

func TestWithSlotLock_ContendedKey(t *testing.T) {
	locker, mr := newTestLocker(t)
	key := "doc-1:2025-06-01:09:00"
	if err := mr.Set("lock:slot:"+key, "someone-else"); err != nil {
		t.Fatal(err)
	}

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("err = %v, want ErrLockNotAcquired", err)
	}

	// Another holder's token must survive.
	got, _ := mr.Get("lock:slot:" + key)
	if got != "someone-else" {
		t.Errorf("foreign lock value = %q", got)
	}
}

func TestWithSlotLock_PropagatesFnError(t *testing.T) {
	locker, mr := newTestLocker(t)
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), "k", func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if mr.Exists("lock:slot:k") {
		t.Error("lock should be released after fn error")
	}
}

func TestWithSlotLock_SetsTTL(t *testing.T) {
	locker, mr := newTestLocker(t)

	_ = locker.WithSlotLock(context.Background(), "k", func(context.Context) error {
		if ttl := mr.TTL("lock:slot:k"); ttl <= 0 || ttl > 5*time.Second {
			t.Errorf("ttl = %s, want (0, 5s]", ttl)
		}
		return nil
	})
}

func TestNoopLocker(t *testing.T) {
	called := false
	err := NoopLocker{}.WithSlotLock(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("called=%v err=%v", called, err)
	}
}

func TestWithSlotLock_RedisDown(t *testing.T) {
	locker, mr := newTestLocker(t)
	mr.Close()

	err := locker.WithSlotLock(context.Background(), "k", func(context.Context) error {
		t.Fatal("fn must not run when the lock could not be requested")
		return nil
	})
	if !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("err = %v, want ErrLockUnavailable", err)
	}
}
