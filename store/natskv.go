package store

import (
	"context"
	stderrors "errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/natsclient"
)

// DefaultStateBucket is the KV bucket device state lives in.
const DefaultStateBucket = "rakan-device-state"

// KVStateStore persists device state in a NATS JetStream key-value bucket.
// Writes are plain puts, so concurrent writers resolve last-writer-wins at
// the bucket.
type KVStateStore struct {
	bucket jetstream.KeyValue
}

// NewKVStateStore opens (creating if needed) the state bucket on client.
func NewKVStateStore(ctx context.Context, client *natsclient.Client, bucketName string) (*KVStateStore, error) {
	if bucketName == "" {
		bucketName = DefaultStateBucket
	}

	bucket, err := client.EnsureKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:  bucketName,
		History: 1,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStateStore", "NewKVStateStore", bucketName)
	}

	return &KVStateStore{bucket: bucket}, nil
}

// Get returns the stored state for deviceID.
func (s *KVStateStore) Get(ctx context.Context, deviceID string) (*event.DeviceState, error) {
	entry, err := s.bucket.Get(ctx, deviceID)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.WrapTransient(errors.ErrKeyNotFound, "KVStateStore", "Get", deviceID)
		}
		return nil, errors.WrapTransient(err, "KVStateStore", "Get", deviceID)
	}

	state, err := event.UnmarshalDeviceState(entry.Value())
	if err != nil {
		return nil, errors.WrapInvalid(err, "KVStateStore", "Get", "decode state")
	}
	return state, nil
}

// Put overwrites the state for state.DeviceID.
func (s *KVStateStore) Put(ctx context.Context, state *event.DeviceState) error {
	if state == nil || state.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingDeviceID, "KVStateStore", "Put", "validate state")
	}

	data, err := state.Marshal()
	if err != nil {
		return errors.WrapInvalid(err, "KVStateStore", "Put", "encode state")
	}

	if _, err := s.bucket.Put(ctx, state.DeviceID, data); err != nil {
		return errors.WrapTransient(err, "KVStateStore", "Put", state.DeviceID)
	}
	return nil
}

// List returns the state of every device in the bucket.
func (s *KVStateStore) List(ctx context.Context) ([]*event.DeviceState, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "KVStateStore", "List", "list keys")
	}

	out := make([]*event.DeviceState, 0, len(keys))
	for _, key := range keys {
		state, err := s.Get(ctx, key)
		if err != nil {
			// Key deleted between Keys and Get.
			if errors.Is(err, errors.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}
