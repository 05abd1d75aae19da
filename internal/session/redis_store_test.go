package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestSaveAndLookup(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	record := Record{UserID: "user_1", UserName: "Ada"}
	if err := store.Save(ctx, "hash-1", record, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.UserID != "user_1" || got.UserName != "Ada" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be stamped on save")
	}
}

func TestLookupUnknownToken(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Lookup(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRejectsExpired(t *testing.T) {
	store, _ := setupTestRedis(t)

	err := store.Save(context.Background(), "hash-1", Record{UserID: "u"}, time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected error for already-expired session")
	}
}

func TestRevoke(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "hash-1", Record{UserID: "u"}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Revoke(ctx, "hash-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
	// Revoking again is a no-op.
	if err := store.Revoke(ctx, "hash-1"); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
}

func TestSessionExpiresWithTTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "hash-1", Record{UserID: "u"}, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Lookup(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}
