package cache

import (
	"context"
	"time"
)

// Cache is a TTL key-value store for one record type. The token store keeps
// authorization codes, access tokens and refresh tokens in three instances;
// the JWT relay keeps its active refresh sessions in a fourth.
//
// Keys are given without backend prefix. Expired keys behave as absent, and
// absent keys are reported as ErrCacheMiss by Get and Take.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Take returns the value and removes it in one step. When several callers
	// race on one key, exactly one gets the value.
	Take(ctx context.Context, key string) (T, error)

	// Delete is idempotent.
	Delete(ctx context.Context, key string) error

	Health(ctx context.Context) error
	Close() error
}
