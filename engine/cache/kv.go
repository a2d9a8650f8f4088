package cache

import (
	"context"
	"errors"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/nats-io/nats.go/jetstream"
)

// KVStore is a Store on a NATS JetStream key-value bucket. Expiry is the
// bucket's TTL; the ttl passed to Set is not used per key.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore wraps an open bucket, see natsutil.KeyValue.
func NewKVStore(kv jetstream.KeyValue) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.Upstream("cache", "get", err)
	}
	return entry.Value(), true, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return domain.Upstream("cache", "set", err)
	}
	return nil
}
