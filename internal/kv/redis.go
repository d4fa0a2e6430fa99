package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var errConditionFailed = errors.New("condition failed")

// RedisStore targets a single Redis primary, which serializes all commands.
type RedisStore struct {
	client *redis.Client
	config Config
}

var (
	_ Store = (*RedisStore)(nil)
	_ Txn   = (*RedisStore)(nil)
)

// NewRedisStore connects to the first reachable server in config.Endpoints.
func NewRedisStore(ctx context.Context, config Config) (*RedisStore, error) {
	client, err := dialEach(ctx, config.Endpoints, func(ctx context.Context, endpoint string) (*redis.Client, error) {
		return connectRedis(ctx, config, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, config: config}, nil
}

func connectRedis(ctx context.Context, config Config, endpoint string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		Username:     config.Username,
		Password:     config.Password,
		DB:           config.Database,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.RequestTimeout,
		WriteTimeout: config.RequestTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close redis client: %w", cerr))
		}
		return nil, err
	}
	return client, nil
}

func (s *RedisStore) key(k string) string {
	return s.config.Namespace + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// CommitIf uses WATCH/MULTI so the puts are discarded if the condition key
// changes after it was read.
func (s *RedisStore) CommitIf(ctx context.Context, cond Condition, puts ...KeyValue) (bool, error) {
	condKey := s.key(cond.Key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, condKey).Result()
		present := true
		if errors.Is(err, redis.Nil) {
			present = false
		} else if err != nil {
			return err
		}
		if !cond.holds(cur, present) {
			return errConditionFailed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, kv := range puts {
				pipe.Set(ctx, s.key(kv.Key), kv.Value, 0)
			}
			return nil
		})
		return err
	}, condKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errConditionFailed), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis txn on %s: %w", cond.Key, err)
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
