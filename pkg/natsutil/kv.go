package natsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// KeyValue opens the named JetStream key-value bucket, creating it or
// updating its TTL as needed. Entries older than ttl are expired by the
// server; zero keeps them forever.
func KeyValue(ctx context.Context, nc *nats.Conn, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("natsutil: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("natsutil: key-value bucket %s: %w", bucket, err)
	}
	return kv, nil
}
