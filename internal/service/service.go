// Package service virtualizes logical buckets onto a single physical
// container, enforces naming and key validation, and orchestrates
// MetadataStore and Backend calls for every data-plane operation.
package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/blobgate/blobgate/internal/backend"
	"github.com/blobgate/blobgate/internal/metadatastore"
	"github.com/blobgate/blobgate/internal/objerr"
)

const bucketMarkerKey = ".bucket"

// Service is the global, immutably shared entrypoint for every bucket and
// object operation. It is instantiated once at startup; the only internal
// mutability it exposes is the MetadataStore's BucketCache lock.
type Service struct {
	backend  backend.Backend
	metadata *metadatastore.Store
}

// New constructs a Service over the given backend and metadata store.
func New(be backend.Backend, ms *metadatastore.Store) *Service {
	return &Service{backend: be, metadata: ms}
}

// ValidateObjectKey enforces the key rules shared by every data-plane
// operation: non-empty, no traversal, no leading slash, not the reserved
// marker name.
func ValidateObjectKey(key string) error {
	if key == "" {
		return objerr.InvalidObjectKey(key)
	}
	if strings.Contains(key, "..") {
		return objerr.InvalidObjectKey(key)
	}
	if strings.HasPrefix(key, "/") {
		return objerr.InvalidObjectKey(key)
	}
	if key == bucketMarkerKey {
		return objerr.InvalidObjectKey(key)
	}
	return nil
}

// prefixedKey maps a logical bucket name and key to the flat backend key.
func prefixedKey(bucketName, key string) string {
	return bucketName + "/" + key
}

// CreateBucket creates the catalog entry, then writes the zero-byte
// ".bucket" marker object that lets flat listing tools see the logical
// bucket's existence.
func (s *Service) CreateBucket(ctx context.Context, name string) (metadatastore.Bucket, error) {
	b, err := s.metadata.CreateBucket(ctx, name)
	if err != nil {
		return metadatastore.Bucket{}, err
	}
	if _, err := s.backend.PutObject(ctx, prefixedKey(name, bucketMarkerKey), strings.NewReader(""), "", nil); err != nil {
		return metadatastore.Bucket{}, err
	}
	return b, nil
}

// UpsertBucket returns the existing bucket if present, otherwise creates it.
func (s *Service) UpsertBucket(ctx context.Context, name string) (metadatastore.Bucket, error) {
	if b, err := s.metadata.GetBucket(ctx, name); err == nil {
		return b, nil
	} else if !objerr.Is(err, objerr.KindNotFound) {
		return metadatastore.Bucket{}, err
	}
	return s.CreateBucket(ctx, name)
}

// GetBucket resolves a bucket by name.
func (s *Service) GetBucket(ctx context.Context, name string) (metadatastore.Bucket, error) {
	return s.metadata.GetBucket(ctx, name)
}

// GetBucketByID resolves a bucket by its deterministic id.
func (s *Service) GetBucketByID(ctx context.Context, id string) (metadatastore.Bucket, error) {
	return s.metadata.GetBucketByID(ctx, id)
}

// ListBuckets returns every catalog entry, newest first.
func (s *Service) ListBuckets(ctx context.Context) ([]metadatastore.Bucket, error) {
	return s.metadata.ListBuckets(ctx)
}

// DeleteBucket verifies the bucket exists and is empty, then best-effort
// removes the marker object and finally removes the catalog entry.
func (s *Service) DeleteBucket(ctx context.Context, name string) error {
	if _, err := s.metadata.GetBucket(ctx, name); err != nil {
		return err
	}

	objects, err := s.backend.ListObjects(ctx, prefixedKey(name, ""), 2)
	if err != nil {
		return err
	}
	markerKey := prefixedKey(name, bucketMarkerKey)
	for _, o := range objects {
		if o.Key != markerKey {
			return objerr.BucketNotEmpty(name)
		}
	}

	_ = s.backend.DeleteObject(ctx, prefixedKey(name, bucketMarkerKey))
	return s.metadata.DeleteBucket(ctx, name)
}

// checkBucketExists verifies name exists in the catalog before any
// data-plane call, per the spec's ordering guarantee.
func (s *Service) checkBucketExists(ctx context.Context, name string) error {
	_, err := s.metadata.GetBucket(ctx, name)
	return err
}

// PutObject validates the bucket and key, then streams body through to the
// backend under the prefixed key.
func (s *Service) PutObject(ctx context.Context, bucketName, key string, body io.Reader, contentType string, customMetadata map[string]string) (backend.ObjectMetadata, error) {
	if err := s.checkBucketExists(ctx, bucketName); err != nil {
		return backend.ObjectMetadata{}, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return backend.ObjectMetadata{}, err
	}

	meta, err := s.backend.PutObject(ctx, prefixedKey(bucketName, key), body, contentType, customMetadata)
	if err != nil {
		return backend.ObjectMetadata{}, err
	}
	meta.Key = key
	return meta, nil
}

// GetObject validates the bucket and key, then streams the object back
// with its key rewritten to the logical (unprefixed) form.
func (s *Service) GetObject(ctx context.Context, bucketName, key string) (*backend.ObjectData, error) {
	if err := s.checkBucketExists(ctx, bucketName); err != nil {
		return nil, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return nil, err
	}

	data, err := s.backend.GetObject(ctx, prefixedKey(bucketName, key))
	if err != nil {
		return nil, err
	}
	data.Key = key
	return data, nil
}

// HeadObject validates the bucket and key, then returns metadata only.
func (s *Service) HeadObject(ctx context.Context, bucketName, key string) (backend.ObjectMetadata, error) {
	if err := s.checkBucketExists(ctx, bucketName); err != nil {
		return backend.ObjectMetadata{}, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return backend.ObjectMetadata{}, err
	}

	meta, err := s.backend.HeadObject(ctx, prefixedKey(bucketName, key))
	if err != nil {
		return backend.ObjectMetadata{}, err
	}
	meta.Key = key
	return meta, nil
}

// DeleteObject validates the bucket and key, then deletes the object.
func (s *Service) DeleteObject(ctx context.Context, bucketName, key string) error {
	if err := s.checkBucketExists(ctx, bucketName); err != nil {
		return err
	}
	if err := ValidateObjectKey(key); err != nil {
		return err
	}
	return s.backend.DeleteObject(ctx, prefixedKey(bucketName, key))
}

// ListObjects validates the bucket, lists objects under the given logical
// prefix, strips the bucket prefix from returned keys, and filters out the
// marker object.
func (s *Service) ListObjects(ctx context.Context, bucketName, prefix string, maxKeys int) ([]backend.ObjectMetadata, error) {
	if err := s.checkBucketExists(ctx, bucketName); err != nil {
		return nil, err
	}

	backendPrefix := prefixedKey(bucketName, prefix)
	entries, err := s.backend.ListObjects(ctx, backendPrefix, maxKeys)
	if err != nil {
		return nil, err
	}

	bucketDirPrefix := bucketName + "/"
	results := make([]backend.ObjectMetadata, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Key, "/"+bucketMarkerKey) || entry.Key == bucketMarkerKey {
			continue
		}
		entry.Key = strings.TrimPrefix(entry.Key, bucketDirPrefix)
		results = append(results, entry)
	}
	return results, nil
}

// ObjectExists validates the bucket and key, then checks presence.
func (s *Service) ObjectExists(ctx context.Context, bucketName, key string) (bool, error) {
	if err := s.checkBucketExists(ctx, bucketName); err != nil {
		return false, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return false, err
	}
	return s.backend.ObjectExists(ctx, prefixedKey(bucketName, key))
}

// GetPublicURL validates the bucket and key, then delegates to the backend
// to mint a time-limited signed URL.
func (s *Service) GetPublicURL(ctx context.Context, bucketName, key string, expiration time.Duration, purpose backend.Purpose) (string, error) {
	if err := s.checkBucketExists(ctx, bucketName); err != nil {
		return "", err
	}
	if err := ValidateObjectKey(key); err != nil {
		return "", err
	}
	return s.backend.GetPublicURL(ctx, prefixedKey(bucketName, key), expiration, purpose)
}
