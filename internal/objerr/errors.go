// Package objerr defines the closed set of error kinds blobgate's core
// returns, and how they map to HTTP status codes at the surface.
package objerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a closed taxonomy of error conditions the core can return.
type Kind int

const (
	// KindNotFound means a bucket or object does not exist.
	KindNotFound Kind = iota
	// KindAlreadyExists means a bucket creation conflicted with an existing name.
	KindAlreadyExists
	// KindInvalidBucketName means a bucket name failed validation.
	KindInvalidBucketName
	// KindInvalidObjectKey means an object key failed validation.
	KindInvalidObjectKey
	// KindInvalidPath means a backend-level path failed traversal checks.
	KindInvalidPath
	// KindBucketNotEmpty means a bucket delete was attempted while objects remain.
	KindBucketNotEmpty
	// KindConfiguration means a backend is unreachable or misconfigured.
	KindConfiguration
	// KindProvider means an unclassified backend/provider failure.
	KindProvider
	// KindUnsupported means the requested operation has no meaning for this backend.
	KindUnsupported
	// KindLockAcquisition means a lock release was attempted by the wrong owner.
	KindLockAcquisition
	// KindInternal means a serialization failure or other catch-all defect.
	KindInternal
)

// String returns a short machine-stable name for the kind, used in logs.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidBucketName:
		return "invalid_bucket_name"
	case KindInvalidObjectKey:
		return "invalid_object_key"
	case KindInvalidPath:
		return "invalid_path"
	case KindBucketNotEmpty:
		return "bucket_not_empty"
	case KindConfiguration:
		return "configuration"
	case KindProvider:
		return "provider"
	case KindUnsupported:
		return "unsupported"
	case KindLockAcquisition:
		return "lock_acquisition"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code the HTTP surface maps this kind to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists, KindBucketNotEmpty:
		return http.StatusConflict
	case KindInvalidBucketName, KindInvalidObjectKey, KindInvalidPath:
		return http.StatusBadRequest
	case KindUnsupported:
		return http.StatusNotImplemented
	case KindConfiguration, KindProvider, KindLockAcquisition, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the concrete error type returned by the core. It carries a Kind,
// a human-readable detail, the identifier the error concerns (bucket name,
// object key, resource, etc.), and an optional wrapped cause.
type Error struct {
	Kind   Kind
	Detail string
	Ident  string
	Cause  error
}

func (e *Error) Error() string {
	if e.Ident != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Ident, e.Detail, e.Cause)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Ident, e.Detail)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// NotFound builds a KindNotFound error for the given resource identifier.
func NotFound(ident, detail string) *Error {
	return &Error{Kind: KindNotFound, Ident: ident, Detail: detail}
}

// AlreadyExists builds a KindAlreadyExists error for the given bucket name.
func AlreadyExists(name string) *Error {
	return &Error{Kind: KindAlreadyExists, Ident: name, Detail: "bucket already exists"}
}

// InvalidBucketName builds a KindInvalidBucketName error.
func InvalidBucketName(name string) *Error {
	return &Error{Kind: KindInvalidBucketName, Ident: name, Detail: "invalid bucket name"}
}

// InvalidObjectKey builds a KindInvalidObjectKey error.
func InvalidObjectKey(key string) *Error {
	return &Error{Kind: KindInvalidObjectKey, Ident: key, Detail: "invalid object key"}
}

// InvalidPath builds a KindInvalidPath error.
func InvalidPath(path string) *Error {
	return &Error{Kind: KindInvalidPath, Ident: path, Detail: "invalid path"}
}

// BucketNotEmpty builds a KindBucketNotEmpty error.
func BucketNotEmpty(name string) *Error {
	return &Error{Kind: KindBucketNotEmpty, Ident: name, Detail: "bucket is not empty"}
}

// Configuration builds a KindConfiguration error.
func Configuration(detail string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Detail: detail, Cause: cause}
}

// Provider builds a KindProvider error.
func Provider(detail string, cause error) *Error {
	return &Error{Kind: KindProvider, Detail: detail, Cause: cause}
}

// Unsupported builds a KindUnsupported error.
func Unsupported(detail string) *Error {
	return &Error{Kind: KindUnsupported, Detail: detail}
}

// LockAcquisition builds a KindLockAcquisition error.
func LockAcquisition(detail string) *Error {
	return &Error{Kind: KindLockAcquisition, Detail: detail}
}

// Internal builds a KindInternal error.
func Internal(detail string, cause error) *Error {
	return &Error{Kind: KindInternal, Detail: detail, Cause: cause}
}

// Is reports whether err (or any error it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal for unrecognized errors so the HTTP surface never panics.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
