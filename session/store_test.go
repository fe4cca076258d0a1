package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "")
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := populatedSession(t)

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if !mr.Exists("icloud:session:" + sess.ClientID()) {
		t.Fatalf("expected key under default prefix")
	}
	ttl := mr.TTL("icloud:session:" + sess.ClientID())
	if ttl <= 0 || ttl > ExtendedMaxAge {
		t.Fatalf("expected ttl bounded by max age, got %v", ttl)
	}

	got, err := store.Load(ctx, sess.ClientID())
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	assertSameSession(t, sess, got)

	remaining, err := store.TTL(ctx, sess.ClientID())
	if err != nil || remaining <= 0 {
		t.Fatalf("ttl: %v %v", remaining, err)
	}
}

func TestStoreRejectsInvalidSession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, New("client")); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for unauthenticated session, got %v", err)
	}

	stale := New("client")
	stale.Apply(LoginInfo{SessionID: "sid", CreatedAt: time.Now().Add(-DefaultMaxAge)})
	if err := store.Save(ctx, stale); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for stale session, got %v", err)
	}
}

func TestStoreLoadExpiredDeletesEntry(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := New("client")
	sess.Apply(LoginInfo{SessionID: "sid", CreatedAt: time.Now()})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(DefaultMaxAge + time.Second) }
	if _, err := store.Load(ctx, "client"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if mr.Exists("icloud:session:client") {
		t.Fatalf("expected expired entry removed")
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := populatedSession(t)

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Delete(ctx, sess.ClientID()); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, sess.ClientID()); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Load(ctx, sess.ClientID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.TTL(ctx, sess.ClientID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound from TTL, got %v", err)
	}
}

func TestStoreRedisUnavailable(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	mr.Close()

	ctx := context.Background()
	if err := store.Save(ctx, populatedSession(t)); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}
