// Package metadatastore persists the bucket catalog and advisory locks as
// regular objects inside a Backend, with a bounded-TTL in-memory read cache
// in front of the catalog.
package metadatastore

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/blobgate/blobgate/internal/objerr"
)

// Bucket is a logical namespace record persisted at
// .metadata/buckets/<name>.json.
type Bucket struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

var bucketNameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,61})?[a-z0-9]$`)

// ValidateBucketName enforces the 3-63 character, lowercase-alnum-with-
// interior-hyphen bucket naming rule.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return objerr.InvalidBucketName(name)
	}
	if !bucketNameRegex.MatchString(name) {
		return objerr.InvalidBucketName(name)
	}
	return nil
}

// GenerateBucketID derives a deterministic 16-hex-digit identifier from the
// bucket name: the same name always yields the same id, and distinct names
// yield distinct ids with overwhelming probability.
func GenerateBucketID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
