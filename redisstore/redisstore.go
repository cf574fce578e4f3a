// Package redisstore keeps page-lifetime checkout state in Redis so it survives a redirect
// round trip that lands on another renderer instance.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL bounds how long an abandoned checkout attempt is kept.
const DefaultTTL = 2 * time.Hour

// Store implements flow.Storage on Redis.
type Store struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// Option customizes a [Store].
type Option func(*Store)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL sets the expiry written with every value.
func WithTTL(ttl time.Duration) Option {
	if ttl <= 0 {
		panic("redisstore: ttl must be positive")
	}
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New wraps an existing client.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redisstore: connect to %s: %w", addr, err)
	}
	return New(rdb, opts...), rdb, nil
}

// Get returns the value for key. A missing key is not an error.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key with the configured expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", key, err)
	}
	return nil
}
