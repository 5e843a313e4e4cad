// Package cache provides TTL caching for classifier verdicts so that
// repeated thematic validations of the same (headline, purpose) pair
// across passes do not pay for another external call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// VerdictKey generates a cache key for a classifier call.
func VerdictKey(anchor, candidate string) string {
	hash := sha256.Sum256([]byte(anchor + "\x00" + candidate))
	return "storyline:verdict:v1:" + hex.EncodeToString(hash[:])
}
