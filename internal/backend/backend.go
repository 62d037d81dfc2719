// Package backend defines the streaming blob interface every storage
// provider adapter satisfies, and the handful of helpers (ETag synthesis,
// the default existence check) shared across adapters.
package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/blobgate/blobgate/internal/objerr"
)

// Purpose distinguishes what a signed URL permits the holder to do.
type Purpose int

const (
	// PurposeRetrieve grants read-only access to the object.
	PurposeRetrieve Purpose = iota
	// PurposeUpload grants write/create access to the object.
	PurposeUpload
)

func (p Purpose) String() string {
	if p == PurposeUpload {
		return "upload"
	}
	return "retrieve"
}

// ObjectMetadata describes a stored object without its body.
type ObjectMetadata struct {
	Key            string
	Size           int64
	ContentType    string
	ETag           string
	LastModified   time.Time
	CustomMetadata map[string]string
}

// ObjectData is ObjectMetadata plus a lazy, single-pass, finite byte stream.
// The Body is owned by the consumer once returned: it must be fully drained
// or closed, and the producing Backend retains no reference to it.
type ObjectData struct {
	ObjectMetadata
	Body io.ReadCloser
}

// Backend is the capability every storage provider adapter implements:
// streaming put/get/head/delete/list/presign over a flat keyspace within a
// single physical container. Implementations must be safe for concurrent
// use; every method accepts a context so request cancellation propagates to
// the underlying provider call.
type Backend interface {
	// Init verifies the configured container exists and is reachable.
	Init(ctx context.Context) error

	// PutObject consumes body exactly once, computing a running SHA-256 to
	// use as the ETag when the provider returns none. Returns metadata with
	// the authoritative size and ETag.
	PutObject(ctx context.Context, key string, body io.Reader, contentType string, customMetadata map[string]string) (ObjectMetadata, error)

	// GetObject returns metadata plus a finite, single-pass stream. The
	// caller must close the returned Body.
	GetObject(ctx context.Context, key string) (*ObjectData, error)

	// HeadObject returns metadata without a body.
	HeadObject(ctx context.Context, key string) (ObjectMetadata, error)

	// DeleteObject removes the object. Idempotent: deleting a missing key is
	// not an error.
	DeleteObject(ctx context.Context, key string) error

	// ListObjects returns one page of objects under prefix, capped at
	// maxKeys (0 means provider default). Pagination beyond maxKeys is not
	// supported.
	ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectMetadata, error)

	// ObjectExists reports whether key exists. Not-found is reported as
	// (false, nil); other errors propagate.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// GetPublicURL issues a time-limited URL granting direct provider
	// access for purpose. Backends that cannot support this return
	// objerr.KindUnsupported.
	GetPublicURL(ctx context.Context, key string, expiration time.Duration, purpose Purpose) (string, error)
}

// DefaultObjectExists implements the spec's default ObjectExists behavior
// (head the object, treat not-found as false, propagate other errors) for
// adapters that have no cheaper native existence check.
func DefaultObjectExists(ctx context.Context, b Backend, key string) (bool, error) {
	_, err := b.HeadObject(ctx, key)
	if err == nil {
		return true, nil
	}
	if objerr.Is(err, objerr.KindNotFound) {
		return false, nil
	}
	return false, err
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data, used as the
// ETag when a provider supplies none.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SynthesizeETag derives a stable per-key ETag from the SHA-256 of key
// alone, for providers/operations (notably list_objects) that surface no
// body hash and no provider ETag. Documented as synthesized, not a content
// hash.
func SynthesizeETag(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
