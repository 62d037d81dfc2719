package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/blobgate/blobgate/internal/objerr"
)

// AzureBlobAPI is the subset of the Azure Blob Storage client blobgate
// calls, narrowed so tests can substitute a fake in place of a real client.
type AzureBlobAPI interface {
	UploadBuffer(ctx context.Context, container, blob string, data []byte) error
	DownloadBuffer(ctx context.Context, container, blob string) ([]byte, error)
	DeleteBlob(ctx context.Context, container, blob string) error
	GetProperties(ctx context.Context, container, blob string) (size int64, contentType string, lastModified time.Time, err error)
	ListBlobs(ctx context.Context, container, prefix string) ([]AzureBlobAttrs, error)
	SASURL(container, blob string, expiration time.Duration, write bool) (string, error)
}

// AzureBlobAttrs holds the blob attributes blobgate needs for listing.
type AzureBlobAttrs struct {
	Name         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// realAzureClient wraps the official Azure SDK client to satisfy AzureBlobAPI.
type realAzureClient struct {
	client *azblob.Client
}

// clientOptions bounds retries on transient blob-store failures (connection
// resets, throttling) instead of leaving every call to the SDK's defaults.
func clientOptions() *azblob.ClientOptions {
	return &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: 3,
				RetryDelay: 200 * time.Millisecond,
			},
		},
	}
}

func newRealAzureClient(accountURL, accountName, accountKey string) (*realAzureClient, error) {
	if accountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return nil, fmt.Errorf("creating Azure shared key credential: %w", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(accountURL, cred, clientOptions())
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client with shared key: %w", err)
		}
		return &realAzureClient{client: client}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, clientOptions())
	if err != nil {
		return nil, fmt.Errorf("creating Azure Blob client: %w", err)
	}
	return &realAzureClient{client: client}, nil
}

func (c *realAzureClient) UploadBuffer(ctx context.Context, container, blob string, data []byte) error {
	_, err := c.client.UploadBuffer(ctx, container, blob, data, nil)
	return err
}

func (c *realAzureClient) DownloadBuffer(ctx context.Context, container, blob string) ([]byte, error) {
	resp, err := c.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *realAzureClient) DeleteBlob(ctx context.Context, container, blob string) error {
	_, err := c.client.DeleteBlob(ctx, container, blob, nil)
	return err
}

func (c *realAzureClient) GetProperties(ctx context.Context, container, blob string) (int64, string, time.Time, error) {
	resp, err := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(blob).GetProperties(ctx, nil)
	if err != nil {
		return 0, "", time.Time{}, err
	}
	var size int64
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	var contentType string
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	var lastModified time.Time
	if resp.LastModified != nil {
		lastModified = *resp.LastModified
	}
	return size, contentType, lastModified, nil
}

func (c *realAzureClient) ListBlobs(ctx context.Context, container, prefix string) ([]AzureBlobAttrs, error) {
	pager := c.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	var out []AzureBlobAttrs
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			attrs := AzureBlobAttrs{Name: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					attrs.Size = *item.Properties.ContentLength
				}
				if item.Properties.ContentType != nil {
					attrs.ContentType = *item.Properties.ContentType
				}
				if item.Properties.LastModified != nil {
					attrs.LastModified = *item.Properties.LastModified
				}
			}
			out = append(out, attrs)
		}
	}
	return out, nil
}

// SASURL issues a shared access signature scoped to read ("r") or
// create+write ("cw") permission on the blob.
func (c *realAzureClient) SASURL(container, blob string, expiration time.Duration, write bool) (string, error) {
	blobClient := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(blob)

	perms := sas.BlobPermissions{Read: true}
	if write {
		perms = sas.BlobPermissions{Create: true, Write: true}
	}

	return blobClient.GetSASURL(perms, time.Now().Add(expiration), nil)
}

// AzureBackend implements Backend against a single upstream Azure Blob
// Storage container.
type AzureBackend struct {
	// Container is the upstream Azure Blob container name.
	Container string
	// AccountURL is the storage account's blob endpoint.
	AccountURL string

	client AzureBlobAPI
}

// NewAzureBackend creates an AzureBackend. When accountKey is non-empty it
// authenticates with a shared key credential (required to mint SAS URLs);
// otherwise it falls back to DefaultAzureCredential.
func NewAzureBackend(ctx context.Context, container, accountURL, accountName, accountKey string) (*AzureBackend, error) {
	client, err := newRealAzureClient(accountURL, accountName, accountKey)
	if err != nil {
		return nil, objerr.Configuration("creating Azure client", err)
	}
	b := &AzureBackend{Container: container, AccountURL: accountURL, client: client}
	slog.Info("azure backend initialized", "container", container, "account", accountURL)
	return b, nil
}

// Init verifies the upstream container is reachable.
func (b *AzureBackend) Init(ctx context.Context) error {
	_, err := b.client.ListBlobs(ctx, b.Container, "\x00nonexistent\x00")
	if err != nil {
		return objerr.Configuration(fmt.Sprintf("cannot access Azure container %q", b.Container), err)
	}
	return nil
}

func (b *AzureBackend) PutObject(ctx context.Context, key string, body io.Reader, contentType string, customMetadata map[string]string) (ObjectMetadata, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectMetadata{}, objerr.Provider("reading object body", err)
	}

	h := sha256.Sum256(data)

	if err := b.client.UploadBuffer(ctx, b.Container, key, data); err != nil {
		return ObjectMetadata{}, objerr.Provider("uploading to Azure Blob", err)
	}

	return ObjectMetadata{
		Key:            key,
		Size:           int64(len(data)),
		ContentType:    contentType,
		ETag:           hex.EncodeToString(h[:]),
		LastModified:   time.Now().UTC(),
		CustomMetadata: customMetadata,
	}, nil
}

func (b *AzureBackend) GetObject(ctx context.Context, key string) (*ObjectData, error) {
	size, contentType, lastModified, err := b.client.GetProperties(ctx, b.Container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, objerr.NotFound(key, "object not found")
		}
		return nil, objerr.Provider("getting blob properties from Azure", err)
	}

	data, err := b.client.DownloadBuffer(ctx, b.Container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, objerr.NotFound(key, "object not found")
		}
		return nil, objerr.Provider("getting object from Azure Blob", err)
	}

	if lastModified.IsZero() {
		lastModified = time.Now().UTC()
	}

	return &ObjectData{
		ObjectMetadata: ObjectMetadata{
			Key:          key,
			Size:         size,
			ContentType:  contentType,
			ETag:         SHA256Hex(data),
			LastModified: lastModified,
		},
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (b *AzureBackend) HeadObject(ctx context.Context, key string) (ObjectMetadata, error) {
	size, contentType, lastModified, err := b.client.GetProperties(ctx, b.Container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return ObjectMetadata{}, objerr.NotFound(key, "object not found")
		}
		return ObjectMetadata{}, objerr.Provider("getting blob properties from Azure", err)
	}
	if lastModified.IsZero() {
		lastModified = time.Now().UTC()
	}
	return ObjectMetadata{
		Key:          key,
		Size:         size,
		ContentType:  contentType,
		ETag:         SynthesizeETag(key),
		LastModified: lastModified,
	}, nil
}

// DeleteObject removes the blob. Idempotent: catches not-found silently.
func (b *AzureBackend) DeleteObject(ctx context.Context, key string) error {
	err := b.client.DeleteBlob(ctx, b.Container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return nil
		}
		return objerr.Provider("deleting object from Azure Blob", err)
	}
	return nil
}

func (b *AzureBackend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectMetadata, error) {
	attrsList, err := b.client.ListBlobs(ctx, b.Container, prefix)
	if err != nil {
		return nil, objerr.Provider("listing blobs in Azure", err)
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
			ETag:         SynthesizeETag(attrs.Name),
			LastModified: lastModified,
		})
		if maxKeys > 0 && len(results) >= maxKeys {
			break
		}
	}
	return results, nil
}

func (b *AzureBackend) ObjectExists(ctx context.Context, key string) (bool, error) {
	return DefaultObjectExists(ctx, b, key)
}

// GetPublicURL issues a SAS URL scoped to read ("r", Retrieve) or
// create+write ("cw", Upload) permission. Requires the backend to have been
// constructed with a shared key credential.
func (b *AzureBackend) GetPublicURL(ctx context.Context, key string, expiration time.Duration, purpose Purpose) (string, error) {
	url, err := b.client.SASURL(b.Container, key, expiration, purpose == PurposeUpload)
	if err != nil {
		return "", objerr.Provider("signing Azure SAS URL", err)
	}
	return url, nil
}

// isAzureNotFound matches the Azure not-found error markers named in the
// spec: BlobNotFound and ContainerNotFound, plus a generic 404 fallback.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "404") ||
		strings.Contains(msg, "blobnotfound") ||
		strings.Contains(msg, "containernotfound") ||
		strings.Contains(msg, "the specified blob does not exist") ||
		strings.Contains(msg, "the specified container does not exist")
}

var _ Backend = (*AzureBackend)(nil)
