package metadatastore

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blobgate/blobgate/internal/backend"
	"github.com/blobgate/blobgate/internal/objerr"
)

// CacheTTL bounds how long a BucketCache entry may be served before the
// next read forces a refresh.
const CacheTTL = 60 * time.Second

const bucketPrefix = ".metadata/buckets/"

func bucketKey(name string) string {
	return bucketPrefix + name + ".json"
}

// BucketCache is an in-memory reflection of the bucket catalog, guarded by
// a single reader/writer lock. Entries may lag the backend by at most
// CacheTTL; they are never treated as authoritative "does not exist"
// without a backend recheck.
type BucketCache struct {
	mu          sync.RWMutex
	buckets     map[string]Bucket
	lastRefresh time.Time
}

// Store is the bucket catalog: a cache in front of records persisted as
// JSON objects inside the given Backend.
type Store struct {
	backend backend.Backend
	cache   BucketCache
}

// New constructs a Store and performs the startup catalog load. Per-record
// parse failures are tolerated and counted; if every record failed to
// parse (and at least one was attempted), startup fails with an internal
// error. Otherwise it proceeds, logging a warning for the failures.
func New(ctx context.Context, be backend.Backend) (*Store, error) {
	s := &Store{backend: be}
	if err := s.refreshCache(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// refreshCache unconditionally reloads the catalog from the backend.
func (s *Store) refreshCache(ctx context.Context) error {
	entries, err := s.backend.ListObjects(ctx, bucketPrefix, 0)
	if err != nil {
		return objerr.Wrap(objerr.KindInternal, "listing bucket catalog", err)
	}

	loaded := make(map[string]Bucket, len(entries))
	var parseFailures int
	for _, entry := range entries {
		name := strings.TrimSuffix(strings.TrimPrefix(entry.Key, bucketPrefix), ".json")
		if name == "" {
			continue
		}
		b, err := s.readBucketRecord(ctx, name)
		if err != nil {
			parseFailures++
			slog.Warn("failed to load bucket catalog entry", "name", name, "error", err)
			continue
		}
		loaded[b.Name] = *b
	}

	if parseFailures > 0 && len(loaded) == 0 && len(entries) > 0 {
		return objerr.Internal("bucket catalog failed to load: no records parsed successfully", nil)
	}

	s.cache.mu.Lock()
	s.cache.buckets = loaded
	s.cache.lastRefresh = time.Now()
	s.cache.mu.Unlock()
	return nil
}

// ForceRefresh reloads the catalog unconditionally.
func (s *Store) ForceRefresh(ctx context.Context) error {
	return s.refreshCache(ctx)
}

func (s *Store) cacheExpired() bool {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()
	return time.Since(s.cache.lastRefresh) > CacheTTL
}

func (s *Store) ensureFresh(ctx context.Context) error {
	if !s.cacheExpired() {
		return nil
	}
	return s.refreshCache(ctx)
}

func (s *Store) cacheGet(name string) (Bucket, bool) {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()
	b, ok := s.cache.buckets[name]
	return b, ok
}

func (s *Store) cacheInsert(b Bucket) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	if s.cache.buckets == nil {
		s.cache.buckets = make(map[string]Bucket)
	}
	s.cache.buckets[b.Name] = b
}

func (s *Store) cacheRemove(name string) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	delete(s.cache.buckets, name)
}

func (s *Store) readBucketRecord(ctx context.Context, name string) (*Bucket, error) {
	obj, err := s.backend.GetObject(ctx, bucketKey(name))
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj.Body); err != nil {
		return nil, objerr.Internal("reading bucket catalog record", err)
	}
	var b Bucket
	if err := json.Unmarshal(buf.Bytes(), &b); err != nil {
		return nil, objerr.Internal("parsing bucket catalog record", err)
	}
	return &b, nil
}

func (s *Store) writeBucketRecord(ctx context.Context, b Bucket) error {
	data, err := json.Marshal(b)
	if err != nil {
		return objerr.Internal("marshaling bucket catalog record", err)
	}
	_, err = s.backend.PutObject(ctx, bucketKey(b.Name), bytes.NewReader(data), "application/json", nil)
	if err != nil {
		return objerr.Wrap(objerr.KindInternal, "writing bucket catalog record", err)
	}
	return nil
}

// CreateBucket validates the name, checks the cache then probes the
// backend directly to close the race where a competing writer created the
// bucket between cache refreshes, then persists the record.
func (s *Store) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	if err := ValidateBucketName(name); err != nil {
		return Bucket{}, err
	}

	if _, ok := s.cacheGet(name); ok {
		return Bucket{}, objerr.AlreadyExists(name)
	}

	if existing, err := s.readBucketRecord(ctx, name); err == nil {
		s.cacheInsert(*existing)
		return Bucket{}, objerr.AlreadyExists(name)
	} else if !objerr.Is(err, objerr.KindNotFound) {
		return Bucket{}, err
	}

	b := Bucket{
		ID:        GenerateBucketID(name),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.writeBucketRecord(ctx, b); err != nil {
		return Bucket{}, err
	}
	s.cacheInsert(b)
	return b, nil
}

// GetBucket resolves a bucket by name with the three-tier lookup: cache hit
// returns immediately; cache miss probes the backend directly and
// populates the cache; a second miss forces a full refresh and re-probes
// the (now fresh) cache before giving up with NotFound.
func (s *Store) GetBucket(ctx context.Context, name string) (Bucket, error) {
	if b, ok := s.cacheGet(name); ok {
		return b, nil
	}

	if b, err := s.readBucketRecord(ctx, name); err == nil {
		s.cacheInsert(*b)
		return *b, nil
	} else if !objerr.Is(err, objerr.KindNotFound) {
		return Bucket{}, err
	}

	if err := s.refreshCache(ctx); err != nil {
		return Bucket{}, err
	}
	if b, ok := s.cacheGet(name); ok {
		return b, nil
	}
	return Bucket{}, objerr.NotFound(name, "bucket not found")
}

// GetBucketByID ensures cache freshness, scans for a matching id, and on
// miss forces a refresh and rescans before giving up with NotFound.
func (s *Store) GetBucketByID(ctx context.Context, id string) (Bucket, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return Bucket{}, err
	}
	if b, ok := s.scanByID(id); ok {
		return b, nil
	}

	if err := s.refreshCache(ctx); err != nil {
		return Bucket{}, err
	}
	if b, ok := s.scanByID(id); ok {
		return b, nil
	}
	return Bucket{}, objerr.NotFound(id, "bucket not found")
}

func (s *Store) scanByID(id string) (Bucket, bool) {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()
	for _, b := range s.cache.buckets {
		if b.ID == id {
			return b, true
		}
	}
	return Bucket{}, false
}

// ListBuckets ensures freshness and returns all catalog entries sorted by
// created_at descending.
func (s *Store) ListBuckets(ctx context.Context) ([]Bucket, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	s.cache.mu.RLock()
	buckets := make([]Bucket, 0, len(s.cache.buckets))
	for _, b := range s.cache.buckets {
		buckets = append(buckets, b)
	}
	s.cache.mu.RUnlock()

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].CreatedAt.After(buckets[j].CreatedAt)
	})
	return buckets, nil
}

// DeleteBucket verifies existence via GetBucket, deletes the catalog
// object, then removes the cache entry.
func (s *Store) DeleteBucket(ctx context.Context, name string) error {
	if _, err := s.GetBucket(ctx, name); err != nil {
		return err
	}
	if err := s.backend.DeleteObject(ctx, bucketKey(name)); err != nil {
		return objerr.Wrap(objerr.KindInternal, "deleting bucket catalog record", err)
	}
	s.cacheRemove(name)
	return nil
}
