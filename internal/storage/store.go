package storage

import (
	"context"
	"time"
)

// ObjectStore is the blob storage contract used for session uploads and
// generation results. Keys are slash-separated relative paths.
type ObjectStore interface {
	// Write persists data at the given key and returns the canonical key.
	Write(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Read returns the object's bytes.
	Read(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// SignedURL produces a time-limited download URL for the key.
	SignedURL(key string, ttl time.Duration) (string, error)
	// Bucket names the backing bucket or root the store writes into.
	Bucket() string
}
