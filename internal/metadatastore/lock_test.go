package metadatastore

import (
	"context"
	"testing"
	"time"

	"github.com/blobgate/blobgate/internal/objerr"
)

func TestTryAcquireLock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("expected lock to be acquired")
	}
}

func TestTryAcquireLockContended(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-1", time.Minute); err != nil || !ok {
		t.Fatalf("first TryAcquireLock failed: ok=%v err=%v", ok, err)
	}

	ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if ok {
		t.Error("second acquire should fail while the first lock is held")
	}

	// Even the original owner cannot re-acquire while still held.
	ok, err = s.TryAcquireLock(ctx, "bucket-a", "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if ok {
		t.Error("re-acquire by the same owner should fail while still held")
	}
}

func TestTryAcquireLockAfterExpiry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-1", time.Nanosecond); err != nil || !ok {
		t.Fatalf("first TryAcquireLock failed: ok=%v err=%v", ok, err)
	}
	time.Sleep(time.Millisecond)

	ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("acquire should succeed once the previous lock has expired")
	}
}

func TestReleaseLock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-1", time.Minute); err != nil || !ok {
		t.Fatalf("TryAcquireLock failed: ok=%v err=%v", ok, err)
	}
	if err := s.ReleaseLock(ctx, "bucket-a", "worker-1"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("acquire should succeed after the lock is released")
	}
}

func TestReleaseLockWrongOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if ok, err := s.TryAcquireLock(ctx, "bucket-a", "worker-1", time.Minute); err != nil || !ok {
		t.Fatalf("TryAcquireLock failed: ok=%v err=%v", ok, err)
	}
	err := s.ReleaseLock(ctx, "bucket-a", "worker-2")
	if !objerr.Is(err, objerr.KindLockAcquisition) {
		t.Errorf("expected KindLockAcquisition, got %v", err)
	}
}

func TestReleaseLockIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.ReleaseLock(context.Background(), "never-locked", "worker-1"); err != nil {
		t.Errorf("releasing a never-acquired lock should not error, got: %v", err)
	}
}

func TestCleanupExpiredLocks(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if ok, err := s.TryAcquireLock(ctx, "expired-resource", "worker-1", time.Nanosecond); err != nil || !ok {
		t.Fatalf("TryAcquireLock failed: ok=%v err=%v", ok, err)
	}
	if ok, err := s.TryAcquireLock(ctx, "live-resource", "worker-1", time.Hour); err != nil || !ok {
		t.Fatalf("TryAcquireLock failed: ok=%v err=%v", ok, err)
	}
	time.Sleep(time.Millisecond)

	n, err := s.CleanupExpiredLocks(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredLocks failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupExpiredLocks cleaned %d locks, want 1", n)
	}

	// The expired lock should now be acquirable again; the live one should not.
	ok, err := s.TryAcquireLock(ctx, "expired-resource", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("expected expired-resource to be acquirable after cleanup")
	}

	ok, err = s.TryAcquireLock(ctx, "live-resource", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock failed: %v", err)
	}
	if ok {
		t.Error("live-resource should remain held after cleanup")
	}
}
