// Package ttl provides functionality for managing time-to-live (TTL) values in the cache.
// It includes utilities for validating TTL configuration, calculating expiration times,
// and checking if values have expired.
package ttl

import (
	"time"

	"github.com/gozephyr/perfkit/errors"
)

// Config represents configuration for TTL behavior
type Config struct {
	// DefaultTTL applies to entries stored without an explicit TTL. Zero means no expiry.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxTTL caps explicit and default TTLs. Zero means unlimited.
	MaxTTL time.Duration `yaml:"max_ttl"`
}

// DefaultConfig returns the default TTL configuration: entries never expire
// unless a TTL is given.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 0,
		MaxTTL:     0,
	}
}

// Validate validates the configuration
func Validate(config Config) error {
	if config.DefaultTTL < 0 || config.MaxTTL < 0 {
		return errors.WrapError("Validate", nil, errors.ErrInvalidTTL)
	}
	if config.MaxTTL > 0 && config.DefaultTTL > config.MaxTTL {
		return errors.WrapError("Validate", nil, errors.ErrInvalidTTL)
	}
	return nil
}

// Normalize clamps a positive TTL to MaxTTL. Non-positive values are returned as-is.
func Normalize(ttl time.Duration, config Config) time.Duration {
	if config.MaxTTL > 0 && ttl > config.MaxTTL {
		return config.MaxTTL
	}
	return ttl
}

// ExpirationFor returns the expiry deadline for an explicit TTL measured from now.
// A TTL of zero or less expires immediately: the deadline is now itself.
func ExpirationFor(now time.Time, ttl time.Duration, config Config) time.Time {
	if ttl <= 0 {
		return now
	}
	return now.Add(Normalize(ttl, config))
}

// DefaultExpiration returns the expiry deadline for an entry stored without a TTL.
// The zero time means the entry never expires.
func DefaultExpiration(now time.Time, config Config) time.Time {
	if config.DefaultTTL <= 0 {
		return time.Time{}
	}
	return ExpirationFor(now, config.DefaultTTL, config)
}

// IsExpired reports whether expiresAt has been reached at now
func IsExpired(now, expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false // Zero time means no expiration
	}
	return !now.Before(expiresAt)
}

// Remaining returns the time left before expiresAt, or zero if none is left.
// ok is false for entries without expiry.
func Remaining(now, expiresAt time.Time) (left time.Duration, ok bool) {
	if expiresAt.IsZero() {
		return 0, false
	}
	if left = expiresAt.Sub(now); left < 0 {
		left = 0
	}
	return left, true
}
