// Package cache holds the latest serialized canvas per project in front of
// the durable store. Entries are never authoritative and may expire at any
// time.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long a canvas stays cached after a write or read-miss.
const DefaultTTL = time.Hour

// Cache is a byte-oriented key-value store with per-entry expiry.
type Cache interface {
	// Get returns the value and true on a hit, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CanvasKey returns the cache key for a project's canvas.
func CanvasKey(projectID string) string {
	return "canvas:project:" + projectID
}
