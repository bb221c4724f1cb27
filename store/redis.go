package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
)

const redisKeyPrefix = "rakan:state:"

// RedisStateStore persists device state in Redis, one JSON value per
// device key. SET gives the same last-writer-wins semantics as the KV
// bucket, so the two backends are interchangeable.
type RedisStateStore struct {
	rdb *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// NewRedisStateStore connects to Redis and verifies the connection.
func NewRedisStateStore(ctx context.Context, opts RedisOptions) (*RedisStateStore, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.WrapTransient(err, "RedisStateStore", "NewRedisStateStore", opts.Addr)
	}

	return &RedisStateStore{rdb: rdb}, nil
}

// Get returns the stored state for deviceID.
func (s *RedisStateStore) Get(ctx context.Context, deviceID string) (*event.DeviceState, error) {
	val, err := s.rdb.Get(ctx, redisKeyPrefix+deviceID).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.WrapTransient(errors.ErrKeyNotFound, "RedisStateStore", "Get", deviceID)
		}
		return nil, errors.WrapTransient(err, "RedisStateStore", "Get", deviceID)
	}

	state, err := event.UnmarshalDeviceState(val)
	if err != nil {
		return nil, errors.WrapInvalid(err, "RedisStateStore", "Get", "decode state")
	}
	return state, nil
}

// Put overwrites the state for state.DeviceID.
func (s *RedisStateStore) Put(ctx context.Context, state *event.DeviceState) error {
	if state == nil || state.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingDeviceID, "RedisStateStore", "Put", "validate state")
	}

	data, err := state.Marshal()
	if err != nil {
		return errors.WrapInvalid(err, "RedisStateStore", "Put", "encode state")
	}

	if err := s.rdb.Set(ctx, redisKeyPrefix+state.DeviceID, data, 0).Err(); err != nil {
		return errors.WrapTransient(err, "RedisStateStore", "Put", state.DeviceID)
	}
	return nil
}

// List returns the state of every device under the key prefix.
func (s *RedisStateStore) List(ctx context.Context) ([]*event.DeviceState, error) {
	var out []*event.DeviceState

	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		val, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if stderrors.Is(err, redis.Nil) {
				continue
			}
			return nil, errors.WrapTransient(err, "RedisStateStore", "List", iter.Val())
		}

		state, err := event.UnmarshalDeviceState(val)
		if err != nil {
			return nil, errors.WrapInvalid(err, "RedisStateStore", "List", "decode state")
		}
		out = append(out, state)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.WrapTransient(err, "RedisStateStore", "List", "scan keys")
	}
	return out, nil
}

// Close releases the Redis connection.
func (s *RedisStateStore) Close() error {
	return s.rdb.Close()
}
