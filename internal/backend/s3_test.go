package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// mockS3Client implements S3API for unit testing.
type mockS3Client struct {
	objects           map[string][]byte
	deleteObjectCalls int
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[key] = data
	h := sha256.Sum256(data)
	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf(`"%x"`, h))}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockS3APIError{code: "NoSuchKey", httpStatus: 404}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockS3APIError{code: "NotFound", httpStatus: 404}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.deleteObjectCalls++
	delete(m.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	var contents []types.Object
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			contents = append(contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(data)))})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

type mockS3APIError struct {
	code       string
	httpStatus int
}

func (e *mockS3APIError) Error() string       { return e.code }
func (e *mockS3APIError) ErrorCode() string    { return e.code }
func (e *mockS3APIError) ErrorMessage() string { return e.code }
func (e *mockS3APIError) ErrorFault() smithy.ErrorFault {
	if e.httpStatus >= 500 {
		return smithy.FaultServer
	}
	return smithy.FaultClient
}

var _ smithy.APIError = (*mockS3APIError)(nil)

func newTestS3Backend() (*S3Backend, *mockS3Client) {
	mock := newMockS3Client()
	return &S3Backend{Bucket: "test-bucket", Region: "us-east-1", client: mock}, mock
}

func TestS3PutAndGetObject(t *testing.T) {
	be, _ := newTestS3Backend()
	ctx := context.Background()

	content := "Hello, S3!"
	meta, err := be.PutObject(ctx, "hello.txt", strings.NewReader(content), "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	expectedETag := hex.EncodeToString(sha256Sum(content))
	if meta.ETag != expectedETag {
		t.Errorf("ETag = %q, want %q", meta.ETag, expectedETag)
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

func sha256Sum(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func TestS3GetObjectNotFound(t *testing.T) {
	be, _ := newTestS3Backend()
	if _, err := be.GetObject(context.Background(), "nonexistent.txt"); err == nil {
		t.Error("GetObject should fail for a missing key")
	}
}

func TestS3DeleteObject(t *testing.T) {
	be, mock := newTestS3Backend()
	ctx := context.Background()

	if _, err := be.PutObject(ctx, "delete-me.txt", strings.NewReader("data"), "", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if err := be.DeleteObject(ctx, "delete-me.txt"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if mock.deleteObjectCalls != 1 {
		t.Errorf("expected 1 DeleteObject call, got %d", mock.deleteObjectCalls)
	}
	exists, err := be.ObjectExists(ctx, "delete-me.txt")
	if err != nil {
		t.Fatalf("ObjectExists failed: %v", err)
	}
	if exists {
		t.Error("object should not exist after deletion")
	}
}

func TestS3ListObjectsPrefix(t *testing.T) {
	be, _ := newTestS3Backend()
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

func TestS3IsNotFound(t *testing.T) {
	if !isS3NotFound(&mockS3APIError{code: "NoSuchKey", httpStatus: 404}) {
		t.Error("NoSuchKey should be classified as not-found")
	}
	if isS3NotFound(fmt.Errorf("some other error")) {
		t.Error("an unrelated error should not be classified as not-found")
	}
}
