// Package natskv implements the cache port on a NATS JetStream KeyValue
// bucket. It is the backing store of the remote registry.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// KV wraps a NATS JetStream KeyValue bucket.
type KV struct {
	kv jetstream.KeyValue
}

// Connect dials NATS and opens (creating if necessary) the KV bucket.
func Connect(ctx context.Context, url, bucket string) (*KV, *nats.Conn, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}

	return &KV{kv: kv}, nc, nil
}

// New wraps an existing KeyValue bucket (used by tests with an embedded server).
func New(kv jetstream.KeyValue) *KV {
	return &KV{kv: kv}
}

// Get retrieves a value. Absence is not an error.
func (c *KV) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value. TTL is managed at bucket level.
func (c *KV) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

// Delete removes a value. Deleting an absent key is not an error.
func (c *KV) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Keys returns all keys under the given prefix.
func (c *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
