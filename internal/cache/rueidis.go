package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

var _ Cache[struct{}] = (*RueidisCache[struct{}])(nil)

// RueidisCache is the TOKEN_STORE=rueidis backend. It speaks RESP3 with
// pipelining and maps Take to GETDEL like RedisCache does.
type RueidisCache[T any] struct {
	client rueidis.Client
	prefix string
}

// NewRueidisCache dials addr and pings it before returning.
func NewRueidisCache[T any](
	ctx context.Context,
	addr, password string,
	db int,
	keyPrefix string,
) (*RueidisCache[T], error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
		SelectDB:    db,
		// Stored records are consumed once or rotated; client-side caching
		// would serve a code or refresh token after GETDEL removed it.
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rueidis client: %w", err)
	}

	c := &RueidisCache[T]{client: client, prefix: keyPrefix}
	if err := c.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return c, nil
}

func (r *RueidisCache[T]) Get(ctx context.Context, key string) (T, error) {
	return r.decode(r.client.Do(ctx, r.client.B().Get().Key(r.prefix+key).Build()))
}

func (r *RueidisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	// PX keeps sub-second TTLs exact; EX would truncate them.
	cmd := r.client.B().Set().Key(r.prefix + key).Value(rueidis.BinaryString(encoded)).
		PxMilliseconds(ttl.Milliseconds()).Build()
	return r.exec(ctx, cmd)
}

func (r *RueidisCache[T]) Take(ctx context.Context, key string) (T, error) {
	return r.decode(r.client.Do(ctx, r.client.B().Getdel().Key(r.prefix+key).Build()))
}

func (r *RueidisCache[T]) Delete(ctx context.Context, key string) error {
	return r.exec(ctx, r.client.B().Del().Key(r.prefix+key).Build())
}

func (r *RueidisCache[T]) Health(ctx context.Context) error {
	return r.exec(ctx, r.client.B().Ping().Build())
}

func (r *RueidisCache[T]) Close() error {
	r.client.Close()
	return nil
}

func (r *RueidisCache[T]) exec(ctx context.Context, cmd rueidis.Completed) error {
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (r *RueidisCache[T]) decode(resp rueidis.RedisResult) (T, error) {
	var value T
	raw, err := resp.AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return value, ErrCacheMiss
	case err != nil:
		if resp.Error() == nil {
			return value, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return value, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return value, nil
}
