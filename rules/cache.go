package rules

import "time"

// RuleCache holds a snapshot of the ordered active rule list so that a
// conversion does not go to the store for every call
type RuleCache interface {
	// Get returns the cached rules, or nil on a miss or after expiry
	Get() []*Rule

	// Set replaces the cached snapshot
	Set(rules []*Rule)

	// Invalidate drops the snapshot, forcing a reload on the next Get
	Invalidate()

	// IsValid reports whether a snapshot is present and not expired
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL bounds how long a snapshot is served.
	// Zero means snapshots live until invalidated.
	TTL time.Duration
}

// DefaultCacheConfig returns a config whose snapshots only change on mutation
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
