// Package redis implements the kv port on a redis server, for deployments
// where order records must survive the bot host.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/posixpascal/knusperity/ports/kv"
)

// Options configures the redis store.
type Options struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key. Defaults to "knusperity:".
	Prefix string

	// TTL expires entries; zero keeps them forever.
	TTL time.Duration
}

// Store is a kv.Store on redis.
type Store struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewStore connects to redis and verifies the connection.
func NewStore(ctx context.Context, opt Options) (*Store, error) {
	if opt.Prefix == "" {
		opt.Prefix = "knusperity:"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", opt.Addr, err)
	}
	return &Store{client: client, prefix: opt.Prefix, ttl: opt.TTL}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, s.prefix+key, data, s.ttl).Err()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

var _ kv.Store = (*Store)(nil)
