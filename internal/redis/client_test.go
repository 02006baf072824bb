package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rdb.Close()

	ping := Pinger(rdb)
	if err := ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}

	mr.Close()
	if err := ping(context.Background()); err == nil {
		t.Error("expected ping error after server closed")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisClient(context.Background(), Options{Addr: addr}); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
