package backend

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocalBackend(t *testing.T) *LocalBackend {
	t.Helper()
	be, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	return be
}

func TestLocalPutAndGetObject(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	content := "Hello, blobgate!"
	meta, err := be.PutObject(ctx, "hello.txt", strings.NewReader(content), "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(content))
	}
	if meta.ETag == "" {
		t.Error("ETag is empty")
	}

	data, err := be.GetObject(ctx, "hello.txt")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer data.Body.Close()

	if data.Size != int64(len(content)) {
		t.Errorf("GetObject size = %d, want %d", data.Size, len(content))
	}
	body, err := io.ReadAll(data.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(body) != content {
		t.Errorf("body = %q, want %q", string(body), content)
	}
}

func TestLocalPutObjectNestedKey(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	content := "nested content"
	if _, err := be.PutObject(ctx, "path/to/deep/file.txt", strings.NewReader(content), "", nil); err != nil {
		t.Fatalf("PutObject (nested) failed: %v", err)
	}

	data, err := be.GetObject(ctx, "path/to/deep/file.txt")
	if err != nil {
		t.Fatalf("GetObject (nested) failed: %v", err)
	}
	defer data.Body.Close()

	body, _ := io.ReadAll(data.Body)
	if string(body) != content {
		t.Errorf("nested body = %q, want %q", string(body), content)
	}
}

func TestLocalPutObjectAtomicWrite(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	content := "atomic write test"
	if _, err := be.PutObject(ctx, "atomic.txt", strings.NewReader(content), "", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(be.RootDir, ".tmp"))
	if err != nil {
		t.Fatalf("ReadDir .tmp failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf(".tmp should be empty after PutObject, has %d entries", len(entries))
	}
}

func TestLocalDeleteObjectIdempotent(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	if err := be.DeleteObject(ctx, "nonexistent.txt"); err != nil {
		t.Errorf("DeleteObject (non-existent) should not error, got: %v", err)
	}
}

func TestLocalObjectExists(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	exists, err := be.ObjectExists(ctx, "nope.txt")
	if err != nil {
		t.Fatalf("ObjectExists failed: %v", err)
	}
	if exists {
		t.Error("ObjectExists should return false for a missing object")
	}

	if _, err := be.PutObject(ctx, "yep.txt", strings.NewReader("data"), "", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	exists, err = be.ObjectExists(ctx, "yep.txt")
	if err != nil {
		t.Fatalf("ObjectExists failed: %v", err)
	}
	if !exists {
		t.Error("ObjectExists should return true for an existing object")
	}
}

func TestLocalGetObjectNotFound(t *testing.T) {
	be := newTestLocalBackend(t)
	if _, err := be.GetObject(context.Background(), "nonexistent.txt"); err == nil {
		t.Error("GetObject should return an error for a missing object")
	}
}

func TestLocalPutObjectRejectsTraversal(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	if _, err := be.PutObject(ctx, "../escape.txt", strings.NewReader("x"), "", nil); err == nil {
		t.Error("PutObject should reject a key containing ..")
	}
	if _, err := be.PutObject(ctx, "/absolute.txt", strings.NewReader("x"), "", nil); err == nil {
		t.Error("PutObject should reject a key with a leading slash")
	}
}

func TestLocalPutObjectOverwrite(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	m1, err := be.PutObject(ctx, "overwrite.txt", strings.NewReader("version 1"), "", nil)
	if err != nil {
		t.Fatalf("PutObject v1 failed: %v", err)
	}
	m2, err := be.PutObject(ctx, "overwrite.txt", strings.NewReader("version 2!!"), "", nil)
	if err != nil {
		t.Fatalf("PutObject v2 failed: %v", err)
	}
	if m1.ETag == m2.ETag {
		t.Error("ETags should differ for different content")
	}

	data, err := be.GetObject(ctx, "overwrite.txt")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer data.Body.Close()
	body, _ := io.ReadAll(data.Body)
	if string(body) != "version 2!!" {
		t.Errorf("body = %q, want %q", string(body), "version 2!!")
	}
}

func TestLocalListObjectsPrefixAndMaxKeys(t *testing.T) {
	be := newTestLocalBackend(t)
	ctx := context.Background()

	for _, key := range []string{"a/1.txt", "a/2.txt", "b/1.txt"} {
		if _, err := be.PutObject(ctx, key, strings.NewReader("x"), "", nil); err != nil {
			t.Fatalf("PutObject(%s) failed: %v", key, err)
		}
	}

	objs, err := be.ListObjects(ctx, "a/", 0)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("ListObjects(prefix a/) = %d objects, want 2", len(objs))
	}

	limited, err := be.ListObjects(ctx, "", 1)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListObjects(maxKeys=1) = %d objects, want 1", len(limited))
	}
}

func TestLocalGetPublicURLUnsupported(t *testing.T) {
	be := newTestLocalBackend(t)
	if _, err := be.GetPublicURL(context.Background(), "key.txt", 0, PurposeRetrieve); err == nil {
		t.Error("GetPublicURL should be unsupported on the local backend")
	}
}
