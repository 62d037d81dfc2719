package backend

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

// mockAzureClient implements AzureBlobAPI for unit testing.
type mockAzureClient struct {
	blobs map[string][]byte
}

func newMockAzureClient() *mockAzureClient {
	return &mockAzureClient{blobs: make(map[string][]byte)}
}

func (m *mockAzureClient) UploadBuffer(ctx context.Context, container, blob string, data []byte) error {
	m.blobs[blob] = append([]byte(nil), data...)
	return nil
}

func (m *mockAzureClient) DownloadBuffer(ctx context.Context, container, blob string) ([]byte, error) {
	data, ok := m.blobs[blob]
	if !ok {
		return nil, azureNotFoundErr{}
	}
	return data, nil
}

func (m *mockAzureClient) DeleteBlob(ctx context.Context, container, blob string) error {
	if _, ok := m.blobs[blob]; !ok {
		return azureNotFoundErr{}
	}
	delete(m.blobs, blob)
	return nil
}

func (m *mockAzureClient) GetProperties(ctx context.Context, container, blob string) (int64, string, time.Time, error) {
	data, ok := m.blobs[blob]
	if !ok {
		return 0, "", time.Time{}, azureNotFoundErr{}
	}
	return int64(len(data)), "", time.Now().UTC(), nil
}

func (m *mockAzureClient) ListBlobs(ctx context.Context, container, prefix string) ([]AzureBlobAttrs, error) {
	var out []AzureBlobAttrs
	for name, data := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, AzureBlobAttrs{Name: name, Size: int64(len(data)), LastModified: time.Now().UTC()})
		}
	}
	return out, nil
}

func (m *mockAzureClient) SASURL(container, blob string, expiration time.Duration, write bool) (string, error) {
	action := "r"
	if write {
		action = "cw"
	}
	return "https://example.blob.core.windows.net/" + container + "/" + blob + "?sp=" + action, nil
}

type azureNotFoundErr struct{}

func (azureNotFoundErr) Error() string { return "BlobNotFound: The specified blob does not exist." }

func newTestAzureBackend() (*AzureBackend, *mockAzureClient) {
	mock := newMockAzureClient()
	return &AzureBackend{Container: "test-container", AccountURL: "https://example.blob.core.windows.net", client: mock}, mock
}

func TestAzurePutAndGetObject(t *testing.T) {
	be, _ := newTestAzureBackend()
	ctx := context.Background()

	content := "Hello, Azure!"
	meta, err := be.PutObject(ctx, "hello.txt", strings.NewReader(content), "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(content))
	}

	data, err := be.GetObject(ctx, "hello.txt")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer data.Body.Close()
	body, _ := io.ReadAll(data.Body)
	if string(body) != content {
		t.Errorf("body = %q, want %q", string(body), content)
	}
}

func TestAzureDeleteObject(t *testing.T) {
	be, _ := newTestAzureBackend()
	ctx := context.Background()

	if _, err := be.PutObject(ctx, "delete-me.txt", strings.NewReader("data"), "", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if err := be.DeleteObject(ctx, "delete-me.txt"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	exists, err := be.ObjectExists(ctx, "delete-me.txt")
	if err != nil {
		t.Fatalf("ObjectExists failed: %v", err)
	}
	if exists {
		t.Error("object should not exist after deletion")
	}
}

func TestAzureListObjectsPrefix(t *testing.T) {
	be, _ := newTestAzureBackend()
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
		t.Fatalf("ListObjects(a/) = %d objects, want 2", len(objs))
	}
}

func TestAzureGetPublicURL(t *testing.T) {
	be, _ := newTestAzureBackend()
	url, err := be.GetPublicURL(context.Background(), "key.txt", time.Hour, PurposeUpload)
	if err != nil {
		t.Fatalf("GetPublicURL failed: %v", err)
	}
	if !strings.Contains(url, "sp=cw") {
		t.Errorf("expected an upload SAS URL, got %q", url)
	}
}
