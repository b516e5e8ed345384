// Package cache holds the response cache consulted by the AI gateway before
// calling an upstream vendor.
//
// The cache is never a correctness boundary: a miss (or a broken backend)
// always falls through to the vendor. Two interchangeable backends exist:
//   - MemoryCache: per-process map, the default.
//   - RedisCache: shared across replicas.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is the lifetime of a cached generation.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "ai:"

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key derives the cache key for a prompt. Provider identity is part of the
// key so switching vendors never serves another vendor's output.
func Key(provider, model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{':'})
	h.Write([]byte(model))
	h.Write([]byte{':'})
	h.Write([]byte(prompt))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
