package cache

import "errors"

// Sentinel errors shared by every backend. Backends wrap the underlying
// client error with %w so callers can match on these with errors.Is.
var (
	ErrCacheMiss        = errors.New("cache: key not found")
	ErrCacheUnavailable = errors.New("cache: backend unavailable")
	ErrInvalidValue     = errors.New("cache: invalid value")
)

// IsMiss reports whether err means the key was absent, expired or already taken.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
