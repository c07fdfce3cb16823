// Package objectstore provides the NATS object store holding syllable audio assets. It
// implements core.ObjectStore and core.ObjectLister.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrBucketNameEmpty indicates that no bucket name was given.
var ErrBucketNameEmpty = errors.New("bucket name cannot be empty")

// Option adjusts the bucket configuration used when the bucket is created.
type Option func(*nats.ObjectStoreConfig)

// WithMemoryStorage keeps the bucket in memory instead of on disk.
func WithMemoryStorage() Option {
	return func(cfg *nats.ObjectStoreConfig) {
		cfg.Storage = nats.MemoryStorage
	}
}

// NatsObjectStore stores audio assets in a NATS JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string, opts ...Option) (*NatsObjectStore, error) {
	if bucketName == "" {
		return nil, ErrBucketNameEmpty
	}

	storeConfig := &nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Syllable audio assets (%s).", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	}

	for _, opt := range opts {
		opt(storeConfig)
	}

	store, err := jetstreamContext.CreateObjectStore(storeConfig)
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves an asset.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	asset, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset '%s' from bucket '%s': %w", key, n.bucket, err)
	}
	defer asset.Close()

	data, err := io.ReadAll(asset)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset '%s': %w", key, err)
	}

	return data, nil
}

// Upload stores an asset under key, replacing any previous version.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "syllable audio asset",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put asset '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// List returns the sorted names of every asset in the bucket. An empty bucket yields an
// empty list.
func (n *NatsObjectStore) List(_ context.Context) ([]string, error) {
	infos, err := n.store.List()
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list assets in bucket '%s': %w", n.bucket, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}

	sort.Strings(names)

	return names, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}
