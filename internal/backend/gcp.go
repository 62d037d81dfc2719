package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/blobgate/blobgate/internal/objerr"
)

// GCSAPI is the subset of the GCS client blobgate calls, narrowed so tests
// can substitute a fake in place of a real client.
type GCSAPI interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, object string) error
	Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]GCSAttrs, error)
	SignedURL(bucket, object string, expiration time.Duration, method string) (string, error)
}

// GCSAttrs holds the object attributes blobgate needs from GCS.
type GCSAttrs struct {
	Name         string
	Size         int64
	ContentType  string
	MD5          []byte
	LastModified time.Time
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	return w
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error) {
	attrs, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSAttrs{
		Name:         attrs.Name,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		MD5:          attrs.MD5,
		LastModified: attrs.Updated,
	}, nil
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]GCSAttrs, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []GCSAttrs
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, GCSAttrs{
			Name:         attrs.Name,
			Size:         attrs.Size,
			ContentType:  attrs.ContentType,
			MD5:          attrs.MD5,
			LastModified: attrs.Updated,
		})
	}
	return out, nil
}

func (c *realGCSClient) SignedURL(bucket, object string, expiration time.Duration, method string) (string, error) {
	return c.client.Bucket(bucket).SignedURL(object, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  method,
		Expires: time.Now().Add(expiration),
	})
}

// GCSBackend implements Backend against a single upstream GCS bucket.
type GCSBackend struct {
	// Bucket is the upstream GCS bucket name.
	Bucket string

	client GCSAPI
}

// NewGCSBackend creates a GCSBackend using Application Default Credentials.
func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, objerr.Configuration("creating GCS client", err)
	}
	b := &GCSBackend{Bucket: bucket, client: &realGCSClient{client: client}}
	slog.Info("gcs backend initialized", "bucket", bucket)
	return b, nil
}

// Init verifies the upstream bucket is reachable by listing with a
// guaranteed-empty prefix.
func (b *GCSBackend) Init(ctx context.Context) error {
	_, err := b.client.ListObjects(ctx, b.Bucket, "\x00nonexistent\x00")
	if err != nil {
		return objerr.Configuration(fmt.Sprintf("cannot access GCS bucket %q", b.Bucket), err)
	}
	return nil
}

func (b *GCSBackend) PutObject(ctx context.Context, key string, body io.Reader, contentType string, customMetadata map[string]string) (ObjectMetadata, error) {
	w := b.client.NewWriter(ctx, b.Bucket, key)
	if gw, ok := w.(*gcs.Writer); ok {
		gw.ContentType = contentType
		gw.Metadata = customMetadata
	}

	h := sha256.New()
	tee := io.TeeReader(body, h)

	size, err := io.Copy(w, tee)
	if err != nil {
		_ = w.Close()
		return ObjectMetadata{}, objerr.Provider("uploading to GCS", err)
	}
	if err := w.Close(); err != nil {
		return ObjectMetadata{}, objerr.Provider("finalizing GCS upload", err)
	}

	return ObjectMetadata{
		Key:            key,
		Size:           size,
		ContentType:    contentType,
		ETag:           hex.EncodeToString(h.Sum(nil)),
		LastModified:   time.Now().UTC(),
		CustomMetadata: customMetadata,
	}, nil
}

func (b *GCSBackend) GetObject(ctx context.Context, key string) (*ObjectData, error) {
	attrs, err := b.client.Attrs(ctx, b.Bucket, key)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, objerr.NotFound(key, "object not found")
		}
		return nil, objerr.Provider("getting object attrs from GCS", err)
	}

	reader, err := b.client.NewReader(ctx, b.Bucket, key)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, objerr.NotFound(key, "object not found")
		}
		return nil, objerr.Provider("getting object from GCS", err)
	}

	lastModified := attrs.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now().UTC()
	}

	return &ObjectData{
		ObjectMetadata: ObjectMetadata{
			Key:          key,
			Size:         attrs.Size,
			ContentType:  attrs.ContentType,
			ETag:         gcsETag(attrs),
			LastModified: lastModified,
		},
		Body: reader,
	}, nil
}

func (b *GCSBackend) HeadObject(ctx context.Context, key string) (ObjectMetadata, error) {
	attrs, err := b.client.Attrs(ctx, b.Bucket, key)
	if err != nil {
		if isGCSNotFound(err) {
			return ObjectMetadata{}, objerr.NotFound(key, "object not found")
		}
		return ObjectMetadata{}, objerr.Provider("heading object in GCS", err)
	}
	lastModified := attrs.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now().UTC()
	}
	return ObjectMetadata{
		Key:          key,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		ETag:         gcsETag(attrs),
		LastModified: lastModified,
	}, nil
}

// DeleteObject removes the object. GCS errors on deleting a non-existent
// object (unlike S3), so not-found is swallowed to stay idempotent.
func (b *GCSBackend) DeleteObject(ctx context.Context, key string) error {
	err := b.client.Delete(ctx, b.Bucket, key)
	if err != nil {
		if isGCSNotFound(err) {
			return nil
		}
		return objerr.Provider("deleting object from GCS", err)
	}
	return nil
}

func (b *GCSBackend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectMetadata, error) {
	attrsList, err := b.client.ListObjects(ctx, b.Bucket, prefix)
	if err != nil {
		return nil, objerr.Provider("listing objects in GCS", err)
	}

	results := make([]ObjectMetadata, 0, len(attrsList))
	for _, attrs := range attrsList {
		lastModified := attrs.LastModified
		if lastModified.IsZero() {
			lastModified = time.Now().UTC()
		}
		results = append(results, ObjectMetadata{
			Key:          attrs.Name,
			Size:         attrs.Size,
			ContentType:  attrs.ContentType,
			ETag:         gcsETag(&attrs),
			LastModified: lastModified,
		})
		if maxKeys > 0 && len(results) >= maxKeys {
			break
		}
	}
	return results, nil
}

func (b *GCSBackend) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.Attrs(ctx, b.Bucket, key)
	if err != nil {
		if isGCSNotFound(err) {
			return false, nil
		}
		return false, objerr.Provider("checking object existence in GCS", err)
	}
	return true, nil
}

// GetPublicURL issues a V4 signed URL scoped to GET (Retrieve) or PUT
// (Upload).
func (b *GCSBackend) GetPublicURL(ctx context.Context, key string, expiration time.Duration, purpose Purpose) (string, error) {
	method := "GET"
	if purpose == PurposeUpload {
		method = "PUT"
	}
	url, err := b.client.SignedURL(b.Bucket, key, expiration, method)
	if err != nil {
		return "", objerr.Provider("signing GCS URL", err)
	}
	return url, nil
}

func gcsETag(attrs *GCSAttrs) string {
	if len(attrs.MD5) > 0 {
		return hex.EncodeToString(attrs.MD5)
	}
	return SynthesizeETag(attrs.Name)
}

// isGCSNotFound checks if a GCS error is a 404/not-found error.
func isGCSNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "404") {
			return true
		}
	}
	return false
}

var _ Backend = (*GCSBackend)(nil)
