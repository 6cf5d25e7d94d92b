package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisRevocationsExpire(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	revocations := NewRedisRevocations(client)
	ctx := context.Background()

	if err := revocations.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := revocations.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}
	if revoked, _ := revocations.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("unrelated token reported revoked")
	}

	mr.FastForward(2 * time.Minute)
	if revoked, _ := revocations.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("revocation should lapse once the token expired")
	}
}

func TestRedisRevocationsSkipsExpiredTokens(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	revocations := NewRedisRevocations(client)

	if err := revocations.Revoke(context.Background(), "old", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if mr.Exists(revokedPrefix + "old") {
		t.Fatalf("expired token should not be stored")
	}
	if err := revocations.Revoke(context.Background(), " ", time.Now().Add(time.Minute)); err == nil {
		t.Fatalf("expected error for blank token id")
	}
}
