package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blobgate/blobgate/internal/objerr"
	"github.com/blobgate/blobgate/internal/uid"
)

const metaSuffix = ".meta.json"

// localMeta is the on-disk JSON sidecar persisted next to every object
// payload file.
type localMeta struct {
	Key            string            `json:"key"`
	Size           int64             `json:"size"`
	ContentType    string            `json:"content_type,omitempty"`
	ETag           string            `json:"etag"`
	LastModified   time.Time         `json:"last_modified"`
	CustomMetadata map[string]string `json:"custom_metadata,omitempty"`
}

// LocalBackend implements Backend against the local filesystem. Each object
// is stored as two files under RootDir/<key>: the payload and a sibling
// <key>.meta.json carrying its ObjectMetadata.
type LocalBackend struct {
	// RootDir is the directory backing the single physical bucket.
	RootDir string
}

// NewLocalBackend creates a LocalBackend rooted at dir, creating dir and its
// .tmp scratch directory if they do not yet exist.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, objerr.Configuration(fmt.Sprintf("creating storage root %q", dir), err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".tmp"), 0o755); err != nil {
		return nil, objerr.Configuration("creating temp directory", err)
	}
	return &LocalBackend{RootDir: dir}, nil
}

// Init verifies the root directory is reachable.
func (b *LocalBackend) Init(ctx context.Context) error {
	info, err := os.Stat(b.RootDir)
	if err != nil {
		return objerr.Configuration(fmt.Sprintf("storage root %q unreachable", b.RootDir), err)
	}
	if !info.IsDir() {
		return objerr.Configuration(fmt.Sprintf("storage root %q is not a directory", b.RootDir), nil)
	}
	slog.Info("local backend initialized", "root", b.RootDir)
	return nil
}

// validateKey rejects traversal attempts before anything touches disk.
func validateKey(key string) error {
	if strings.Contains(key, "..") {
		return objerr.InvalidPath(key)
	}
	if strings.HasPrefix(key, "/") {
		return objerr.InvalidPath(key)
	}
	return nil
}

func (b *LocalBackend) objectPath(key string) string {
	return filepath.Join(b.RootDir, key)
}

func (b *LocalBackend) metaPath(key string) string {
	return filepath.Join(b.RootDir, key+metaSuffix)
}

func (b *LocalBackend) tempPath() string {
	return filepath.Join(b.RootDir, ".tmp", "tmp-"+uid.New())
}

// PutObject writes the payload streamingly to a temp file, computing SHA-256
// on the fly, fsyncs, renames into place, then writes the metadata sidecar.
func (b *LocalBackend) PutObject(ctx context.Context, key string, body io.Reader, contentType string, customMetadata map[string]string) (ObjectMetadata, error) {
	if err := validateKey(key); err != nil {
		return ObjectMetadata{}, err
	}

	objPath := b.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return ObjectMetadata{}, objerr.Provider("creating parent directories", err)
	}

	tmpPath := b.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return ObjectMetadata{}, objerr.Provider("creating temp file", err)
	}

	h := sha256.New()
	tee := io.TeeReader(body, h)

	size, err := io.Copy(tmpFile, tee)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return ObjectMetadata{}, objerr.Provider("reading object body", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return ObjectMetadata{}, objerr.Provider("syncing object payload", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return ObjectMetadata{}, objerr.Provider("closing object payload", err)
	}
	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return ObjectMetadata{}, objerr.Provider("renaming object payload into place", err)
	}

	meta := ObjectMetadata{
		Key:            key,
		Size:           size,
		ContentType:    contentType,
		ETag:           hex.EncodeToString(h.Sum(nil)),
		LastModified:   time.Now().UTC(),
		CustomMetadata: customMetadata,
	}
	if err := b.writeMeta(key, meta); err != nil {
		return ObjectMetadata{}, err
	}
	return meta, nil
}

func (b *LocalBackend) writeMeta(key string, meta ObjectMetadata) error {
	data, err := json.MarshalIndent(localMeta{
		Key:            meta.Key,
		Size:           meta.Size,
		ContentType:    meta.ContentType,
		ETag:           meta.ETag,
		LastModified:   meta.LastModified,
		CustomMetadata: meta.CustomMetadata,
	}, "", "  ")
	if err != nil {
		return objerr.Internal("marshaling object metadata", err)
	}
	if err := os.WriteFile(b.metaPath(key), data, 0o644); err != nil {
		return objerr.Provider("writing object metadata", err)
	}
	return nil
}

func (b *LocalBackend) readMeta(key string) (*localMeta, error) {
	data, err := os.ReadFile(b.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, objerr.NotFound(key, "object not found")
		}
		return nil, objerr.Provider("reading object metadata", err)
	}
	var m localMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, objerr.Internal("parsing object metadata", err)
	}
	return &m, nil
}

// GetObject opens the payload file for streaming and returns its sidecar
// metadata. last_modified comes from the metadata sidecar when present,
// otherwise now.
func (b *LocalBackend) GetObject(ctx context.Context, key string) (*ObjectData, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m, err := b.readMeta(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(b.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, objerr.NotFound(key, "object not found")
		}
		return nil, objerr.Provider("opening object payload", err)
	}

	lastModified := m.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now().UTC()
	}

	return &ObjectData{
		ObjectMetadata: ObjectMetadata{
			Key:            key,
			Size:           m.Size,
			ContentType:    m.ContentType,
			ETag:           m.ETag,
			LastModified:   lastModified,
			CustomMetadata: m.CustomMetadata,
		},
		Body: f,
	}, nil
}

// HeadObject returns the metadata sidecar without opening the payload.
func (b *LocalBackend) HeadObject(ctx context.Context, key string) (ObjectMetadata, error) {
	if err := validateKey(key); err != nil {
		return ObjectMetadata{}, err
	}
	m, err := b.readMeta(key)
	if err != nil {
		return ObjectMetadata{}, err
	}
	return ObjectMetadata{
		Key:            key,
		Size:           m.Size,
		ContentType:    m.ContentType,
		ETag:           m.ETag,
		LastModified:   m.LastModified,
		CustomMetadata: m.CustomMetadata,
	}, nil
}

// DeleteObject removes both the payload and metadata sidecar. Idempotent.
func (b *LocalBackend) DeleteObject(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(b.objectPath(key)); err != nil && !os.IsNotExist(err) {
		return objerr.Provider("removing object payload", err)
	}
	if err := os.Remove(b.metaPath(key)); err != nil && !os.IsNotExist(err) {
		return objerr.Provider("removing object metadata", err)
	}
	return nil
}

// ListObjects walks RootDir recursively, skipping metadata sidecars, and
// returns every object whose key starts with prefix. max_keys caps the
// result and short-circuits the walk.
func (b *LocalBackend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectMetadata, error) {
	var results []ObjectMetadata

	stop := fmt.Errorf("blobgate: list short-circuit")
	err := filepath.Walk(b.RootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if filepath.Ext(path) == ".json" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(b.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, ".tmp/") {
			return nil
		}
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}

		m, metaErr := b.readMeta(rel)
		if metaErr != nil {
			// Payload without a readable sidecar: skip (e.g. interrupted write).
			return nil
		}
		results = append(results, ObjectMetadata{
			Key:            rel,
			Size:           m.Size,
			ContentType:    m.ContentType,
			ETag:           m.ETag,
			LastModified:   m.LastModified,
			CustomMetadata: m.CustomMetadata,
		})
		if maxKeys > 0 && len(results) >= maxKeys {
			return stop
		}
		return nil
	})
	if err != nil && err != stop {
		return nil, objerr.Provider("walking storage root", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	if maxKeys > 0 && len(results) > maxKeys {
		results = results[:maxKeys]
	}
	return results, nil
}

// ObjectExists checks for the metadata sidecar's presence.
func (b *LocalBackend) ObjectExists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(b.metaPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, objerr.Provider("checking object existence", err)
}

// GetPublicURL is not supported on the local filesystem backend.
func (b *LocalBackend) GetPublicURL(ctx context.Context, key string, expiration time.Duration, purpose Purpose) (string, error) {
	return "", objerr.Unsupported("local backend does not support signed URLs")
}

var _ Backend = (*LocalBackend)(nil)
