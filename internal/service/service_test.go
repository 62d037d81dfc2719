package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/blobgate/blobgate/internal/backend"
	"github.com/blobgate/blobgate/internal/metadatastore"
	"github.com/blobgate/blobgate/internal/objerr"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	be, err := backend.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	ctx := context.Background()
	ms, err := metadatastore.New(ctx, be)
	if err != nil {
		t.Fatalf("metadatastore.New failed: %v", err)
	}
	return New(be, ms)
}

func TestValidateObjectKey(t *testing.T) {
	valid := []string{"a.txt", "path/to/file.txt", "no-extension"}
	for _, key := range valid {
		if err := ValidateObjectKey(key); err != nil {
			t.Errorf("ValidateObjectKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{"", "../escape.txt", "/absolute.txt", "a/../b.txt", ".bucket"}
	for _, key := range invalid {
		if err := ValidateObjectKey(key); !objerr.Is(err, objerr.KindInvalidObjectKey) {
			t.Errorf("ValidateObjectKey(%q): expected KindInvalidObjectKey, got %v", key, err)
		}
	}
}

func TestCreateBucketAndPutGetObject(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateBucket(ctx, "photos"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	content := "binary data"
	meta, err := s.PutObject(ctx, "photos", "cat.jpg", strings.NewReader(content), "image/jpeg", nil)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if meta.Key != "cat.jpg" {
		t.Errorf("PutObject meta.Key = %q, want %q (should be unprefixed)", meta.Key, "cat.jpg")
	}

	data, err := s.GetObject(ctx, "photos", "cat.jpg")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer data.Body.Close()
	if data.Key != "cat.jpg" {
		t.Errorf("GetObject data.Key = %q, want %q", data.Key, "cat.jpg")
	}
	body, _ := io.ReadAll(data.Body)
	if string(body) != content {
		t.Errorf("body = %q, want %q", string(body), content)
	}
}

func TestPutObjectUnknownBucket(t *testing.T) {
	s := newTestService(t)
	_, err := s.PutObject(context.Background(), "ghost-bucket", "file.txt", strings.NewReader("x"), "", nil)
	if !objerr.Is(err, objerr.KindNotFound) {
		t.Errorf("expected KindNotFound for an unknown bucket, got %v", err)
	}
}

func TestPutObjectInvalidKey(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.CreateBucket(ctx, "bucket-one"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	_, err := s.PutObject(ctx, "bucket-one", "../escape.txt", strings.NewReader("x"), "", nil)
	if !objerr.Is(err, objerr.KindInvalidObjectKey) {
		t.Errorf("expected KindInvalidObjectKey, got %v", err)
	}
}

func TestUpsertBucketGetsOrCreates(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.UpsertBucket(ctx, "upserted")
	if err != nil {
		t.Fatalf("UpsertBucket (create) failed: %v", err)
	}

	again, err := s.UpsertBucket(ctx, "upserted")
	if err != nil {
		t.Fatalf("UpsertBucket (get) failed: %v", err)
	}
	if again.ID != created.ID {
		t.Errorf("UpsertBucket returned a different bucket on second call: %q vs %q", again.ID, created.ID)
	}
}

func TestListObjectsStripsPrefixAndMarker(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateBucket(ctx, "gallery"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	for _, key := range []string{"a.txt", "b.txt", "sub/c.txt"} {
		if _, err := s.PutObject(ctx, "gallery", key, strings.NewReader("x"), "", nil); err != nil {
			t.Fatalf("PutObject(%s) failed: %v", key, err)
		}
	}

	entries, err := s.ListObjects(ctx, "gallery", "", 0)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListObjects returned %d entries, want 3 (marker object must be filtered out)", len(entries))
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Key, "gallery/") {
			t.Errorf("entry key %q still carries the bucket prefix", e.Key)
		}
		if e.Key == ".bucket" {
			t.Error("marker object leaked into ListObjects results")
		}
	}
}

func TestDeleteBucketRejectsNonEmpty(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateBucket(ctx, "occupied"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if _, err := s.PutObject(ctx, "occupied", "file.txt", strings.NewReader("x"), "", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	err := s.DeleteBucket(ctx, "occupied")
	if !objerr.Is(err, objerr.KindBucketNotEmpty) {
		t.Errorf("expected KindBucketNotEmpty, got %v", err)
	}
}

func TestDeleteBucketSucceedsWhenEmpty(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateBucket(ctx, "empty-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if err := s.DeleteBucket(ctx, "empty-bucket"); err != nil {
		t.Fatalf("DeleteBucket failed: %v", err)
	}
	if _, err := s.GetBucket(ctx, "empty-bucket"); !objerr.Is(err, objerr.KindNotFound) {
		t.Errorf("expected KindNotFound after delete, got %v", err)
	}
}

func TestGetObjectUnknownBucket(t *testing.T) {
	s := newTestService(t)
	_, err := s.GetObject(context.Background(), "ghost", "key.txt")
	if !objerr.Is(err, objerr.KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
}

func TestObjectExists(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateBucket(ctx, "check-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	exists, err := s.ObjectExists(ctx, "check-bucket", "missing.txt")
	if err != nil {
		t.Fatalf("ObjectExists failed: %v", err)
	}
	if exists {
		t.Error("ObjectExists should return false for a missing key")
	}

	if _, err := s.PutObject(ctx, "check-bucket", "present.txt", strings.NewReader("x"), "", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	exists, err = s.ObjectExists(ctx, "check-bucket", "present.txt")
	if err != nil {
		t.Fatalf("ObjectExists failed: %v", err)
	}
	if !exists {
		t.Error("ObjectExists should return true for an existing key")
	}
}
