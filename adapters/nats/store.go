package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/posixpascal/knusperity/ports/kv"
)

// StoreConfig configures the JetStream kv store.
type StoreConfig struct {
	Connect Connector
	// Bucket names the JetStream key-value bucket. Required.
	Bucket string
	// MaxBytes bounds the bucket; zero means 1 MiB.
	MaxBytes int64
}

// Store is a kv.Store on a JetStream key-value bucket. Order records are
// tiny, so one bucket with a modest size cap carries a whole deployment.
type Store struct {
	kv    jetstream.KeyValue
	close closeFunc
}

// NewStore connects and creates (or opens) the bucket.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1024 * 1024
	}

	nc, closeCon, err := doConnect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeCon()
		return nil, err
	}
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		MaxBytes: maxBytes,
	})
	if err != nil {
		closeCon()
		return nil, fmt.Errorf("open bucket %s: %w", cfg.Bucket, err)
	}
	return &Store{kv: bucket, close: closeCon}, nil
}

// Close releases the connection lease.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// JetStream kv keys use dots as separators; the port's keys use slashes.
func bucketKey(key string) string {
	return strings.ReplaceAll(key, "/", ".")
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.kv.Put(ctx, bucketKey(key), data)
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, bucketKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.kv.Purge(ctx, bucketKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

var _ kv.Store = (*Store)(nil)
