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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/blobgate/blobgate/internal/objerr"
)

// S3API is the subset of the AWS S3 client blobgate calls, narrowed so
// tests can substitute a fake in place of a real client.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Backend implements Backend against a single upstream AWS S3 bucket.
type S3Backend struct {
	// Bucket is the upstream S3 bucket name.
	Bucket string
	// Region is the AWS region of the upstream bucket.
	Region string

	client    S3API
	presigner *s3.PresignClient
}

// NewS3Backend creates an S3Backend using the default AWS credential chain,
// optionally overridden with a custom endpoint and static credentials (e.g.
// MinIO/LocalStack, which don't run with IAM roles or a shared config file).
func NewS3Backend(ctx context.Context, bucket, region, endpoint, accessKey, secretKey string) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, objerr.Configuration("loading AWS config", err)
	}

	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(cfg, opts...)

	b := &S3Backend{
		Bucket:    bucket,
		Region:    region,
		client:    client,
		presigner: s3.NewPresignClient(client),
	}
	slog.Info("s3 backend initialized", "bucket", bucket, "region", region, "endpoint", endpoint)
	return b, nil
}

// Init verifies the upstream bucket is reachable.
func (b *S3Backend) Init(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.Bucket)})
	if err != nil {
		return objerr.Configuration(fmt.Sprintf("cannot access S3 bucket %q", b.Bucket), err)
	}
	return nil
}

func (b *S3Backend) PutObject(ctx context.Context, key string, body io.Reader, contentType string, customMetadata map[string]string) (ObjectMetadata, error) {
	h := sha256.New()
	counter := &countingReader{r: io.TeeReader(body, h)}
	input := &s3.PutObjectInput{
		Bucket:   aws.String(b.Bucket),
		Key:      aws.String(key),
		Body:     counter,
		Metadata: customMetadata,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := b.client.PutObject(ctx, input)
	if err != nil {
		if isS3NotFound(err) {
			return ObjectMetadata{}, objerr.NotFound(b.Bucket, "bucket not found")
		}
		return ObjectMetadata{}, objerr.Provider("uploading to S3", err)
	}

	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	if etag == "" {
		etag = hex.EncodeToString(h.Sum(nil))
	}
	return ObjectMetadata{
		Key:            key,
		Size:           counter.n,
		ContentType:    contentType,
		ETag:           etag,
		LastModified:   time.Now().UTC(),
		CustomMetadata: customMetadata,
	}, nil
}

// countingReader tallies bytes read through it so PutObject can report the
// uploaded size without buffering the whole body in memory.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (b *S3Backend) GetObject(ctx context.Context, key string) (*ObjectData, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, objerr.NotFound(key, "object not found")
		}
		return nil, objerr.Provider("getting object from S3", err)
	}

	lastModified := time.Now().UTC()
	if out.LastModified != nil {
		lastModified = *out.LastModified
	}
	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	size := aws.ToInt64(out.ContentLength)

	return &ObjectData{
		ObjectMetadata: ObjectMetadata{
			Key:            key,
			Size:           size,
			ContentType:    aws.ToString(out.ContentType),
			ETag:           etag,
			LastModified:   lastModified,
			CustomMetadata: out.Metadata,
		},
		Body: out.Body,
	}, nil
}

func (b *S3Backend) HeadObject(ctx context.Context, key string) (ObjectMetadata, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ObjectMetadata{}, objerr.NotFound(key, "object not found")
		}
		return ObjectMetadata{}, objerr.Provider("heading object in S3", err)
	}

	lastModified := time.Now().UTC()
	if out.LastModified != nil {
		lastModified = *out.LastModified
	}
	etag := strings.Trim(aws.ToString(out.ETag), `"`)

	return ObjectMetadata{
		Key:            key,
		Size:           aws.ToInt64(out.ContentLength),
		ContentType:    aws.ToString(out.ContentType),
		ETag:           etag,
		LastModified:   lastModified,
		CustomMetadata: out.Metadata,
	}, nil
}

func (b *S3Backend) DeleteObject(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return objerr.Provider("deleting object from S3", err)
	}
	return nil
}

func (b *S3Backend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectMetadata, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String(prefix),
	}
	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(maxKeys))
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, objerr.Provider("listing objects in S3", err)
	}

	results := make([]ObjectMetadata, 0, len(out.Contents))
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		etag := strings.Trim(aws.ToString(obj.ETag), `"`)
		if etag == "" {
			etag = SynthesizeETag(key)
		}
		lastModified := time.Now().UTC()
		if obj.LastModified != nil {
			lastModified = *obj.LastModified
		}
		results = append(results, ObjectMetadata{
			Key:          key,
			Size:         aws.ToInt64(obj.Size),
			ETag:         etag,
			LastModified: lastModified,
		})
	}
	return results, nil
}

func (b *S3Backend) ObjectExists(ctx context.Context, key string) (bool, error) {
	return DefaultObjectExists(ctx, b, key)
}

// GetPublicURL issues a presigned GET (Retrieve) or PUT (Upload) URL.
func (b *S3Backend) GetPublicURL(ctx context.Context, key string, expiration time.Duration, purpose Purpose) (string, error) {
	if purpose == PurposeUpload {
		out, err := b.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expiration))
		if err != nil {
			return "", objerr.Provider("presigning S3 upload URL", err)
		}
		return out.URL, nil
	}

	out, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", objerr.Provider("presigning S3 retrieve URL", err)
	}
	return out.URL, nil
}

// isS3NotFound matches the S3 not-found markers named in the spec: NoSuchKey,
// NotFound, NoSuchBucket, and HTTP 404.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket", "404":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

var _ Backend = (*S3Backend)(nil)
