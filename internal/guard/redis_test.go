package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLease(t *testing.T) (*RedisLease, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLeaseWithClient(client), mr
}

func TestRedisLeaseAcquireRelease(t *testing.T) {
	lease, _ := newTestLease(t)
	ctx := context.Background()

	release, err := lease.Acquire(ctx, "M1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if _, err := lease.Acquire(ctx, "M1"); !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld while held, got %v", err)
	}

	release()
	release2, err := lease.Acquire(ctx, "M1")
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	release2()
}

func TestRedisLeaseIndependentKeys(t *testing.T) {
	lease, _ := newTestLease(t)
	ctx := context.Background()

	releaseA, err := lease.Acquire(ctx, "M1")
	if err != nil {
		t.Fatalf("acquire M1 failed: %v", err)
	}
	defer releaseA()

	releaseB, err := lease.Acquire(ctx, "M2")
	if err != nil {
		t.Fatalf("acquire M2 should not be blocked by M1: %v", err)
	}
	releaseB()
}

func TestRedisLeaseExpires(t *testing.T) {
	lease, mr := newTestLease(t)
	ctx := context.Background()

	if _, err := lease.Acquire(ctx, "M1"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// a crashed holder never releases; the TTL frees the lease
	mr.FastForward(defaultLeaseTTL)

	release, err := lease.Acquire(ctx, "M1")
	if err != nil {
		t.Fatalf("acquire after expiry failed: %v", err)
	}
	release()
}

func TestRedisLeaseReleaseIsTokenScoped(t *testing.T) {
	lease, mr := newTestLease(t)
	ctx := context.Background()

	staleRelease, err := lease.Acquire(ctx, "M1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// the first holder's lease expires and somebody else takes it
	mr.FastForward(defaultLeaseTTL)
	release, err := lease.Acquire(ctx, "M1")
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	// the stale release must not free the new holder's lease
	staleRelease()
	if _, err := lease.Acquire(ctx, "M1"); !errors.Is(err, ErrLockHeld) {
		t.Errorf("stale release freed another holder's lease: %v", err)
	}
	release()
}

func TestRedisLeasePing(t *testing.T) {
	lease, mr := newTestLease(t)
	if err := lease.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	mr.Close()
	if err := lease.Ping(context.Background()); err == nil {
		t.Errorf("expected ping failure after server shutdown")
	}
}
