package metadatastore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/blobgate/blobgate/internal/objerr"
)

const lockPrefix = ".metadata/locks/"

func lockKey(resource string) string {
	return lockPrefix + resource
}

// Lock is a best-effort, TTL-bounded mutual-exclusion hint persisted as a
// regular object at .metadata/locks/<resource>. Held iff the record exists
// and ExpiresAt is in the future.
type Lock struct {
	Resource   string    `json:"resource"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (s *Store) readLock(ctx context.Context, resource string) (*Lock, error) {
	obj, err := s.backend.GetObject(ctx, lockKey(resource))
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj.Body); err != nil {
		return nil, objerr.Internal("reading lock record", err)
	}
	var l Lock
	if err := json.Unmarshal(buf.Bytes(), &l); err != nil {
		return nil, objerr.Internal("parsing lock record", err)
	}
	return &l, nil
}

func (s *Store) writeLock(ctx context.Context, l Lock) error {
	data, err := json.Marshal(l)
	if err != nil {
		return objerr.Internal("marshaling lock record", err)
	}
	_, err = s.backend.PutObject(ctx, lockKey(l.Resource), bytes.NewReader(data), "application/json", nil)
	if err != nil {
		return objerr.Wrap(objerr.KindInternal, "writing lock record", err)
	}
	return nil
}

// TryAcquireLock attempts to acquire an advisory lock on resource for
// owner, valid for ttl. Returns false without error if the lock is
// currently held by anyone (including owner itself) and not yet expired.
//
// This is explicitly non-atomic: the read-then-write sequence against an
// eventually-consistent backend can let two callers both observe "expired"
// and both install a lock. Callers needing strict mutual exclusion must
// layer a stronger primitive on top.
func (s *Store) TryAcquireLock(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	existing, err := s.readLock(ctx, resource)
	if err != nil && !objerr.Is(err, objerr.KindNotFound) {
		return false, err
	}
	if existing != nil && existing.ExpiresAt.After(time.Now()) {
		return false, nil
	}

	now := time.Now().UTC()
	l := Lock{
		Resource:   resource,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.writeLock(ctx, l); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseLock deletes the lock on resource if held by owner. Releasing a
// non-existent lock succeeds silently (idempotent). Releasing a lock held
// by a different owner fails with LockAcquisition.
func (s *Store) ReleaseLock(ctx context.Context, resource, owner string) error {
	existing, err := s.readLock(ctx, resource)
	if err != nil {
		if objerr.Is(err, objerr.KindNotFound) {
			return nil
		}
		return err
	}
	if existing.Owner != owner {
		return objerr.LockAcquisition("lock is held by a different owner")
	}
	if err := s.backend.DeleteObject(ctx, lockKey(resource)); err != nil {
		return objerr.Wrap(objerr.KindInternal, "deleting lock record", err)
	}
	return nil
}

// CleanupExpiredLocks lists all locks, deletes those whose ExpiresAt has
// passed, and tolerates per-lock read failures. Intended to run on a
// periodic sweeper (~60s).
func (s *Store) CleanupExpiredLocks(ctx context.Context) (int, error) {
	entries, err := s.backend.ListObjects(ctx, lockPrefix, 0)
	if err != nil {
		return 0, objerr.Wrap(objerr.KindInternal, "listing locks", err)
	}

	now := time.Now()
	cleaned := 0
	for _, entry := range entries {
		resource := strings.TrimPrefix(entry.Key, lockPrefix)
		if resource == "" {
			continue
		}
		l, err := s.readLock(ctx, resource)
		if err != nil {
			continue
		}
		if l.ExpiresAt.Before(now) {
			if err := s.backend.DeleteObject(ctx, lockKey(resource)); err == nil {
				cleaned++
			}
		}
	}
	return cleaned, nil
}
