package kv

import (
	"context"
	"fmt"

	"github.com/hashicorp/consul/api"
)

// ConsulStore uses the Consul KV API with consistent reads.
type ConsulStore struct {
	client *api.Client
	kv     *api.KV
	config Config
}

var (
	_ Store = (*ConsulStore)(nil)
	_ Txn   = (*ConsulStore)(nil)
)

// NewConsulStore connects to the first reachable agent in config.Endpoints.
func NewConsulStore(ctx context.Context, config Config) (*ConsulStore, error) {
	client, err := dialEach(ctx, config.Endpoints, func(ctx context.Context, endpoint string) (*api.Client, error) {
		return connectConsul(ctx, config, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to consul: %w", err)
	}
	return &ConsulStore{client: client, kv: client.KV(), config: config}, nil
}

func connectConsul(ctx context.Context, config Config, endpoint string) (*api.Client, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = endpoint
	consulConfig.Token = config.Token
	if config.Username != "" {
		consulConfig.HttpAuth = &api.HttpBasicAuth{Username: config.Username, Password: config.Password}
	}
	consulConfig.WaitTime = config.RequestTimeout

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if _, err := client.Status().LeaderWithQueryOptions((&api.QueryOptions{}).WithContext(pingCtx)); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *ConsulStore) key(k string) string {
	return s.config.Namespace + k
}

func (s *ConsulStore) queryOptions(ctx context.Context) (*api.QueryOptions, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	return (&api.QueryOptions{RequireConsistent: true}).WithContext(opCtx), cancel
}

func (s *ConsulStore) Get(ctx context.Context, key string) (string, bool, error) {
	opts, cancel := s.queryOptions(ctx)
	defer cancel()
	pair, _, err := s.kv.Get(s.key(key), opts)
	if err != nil {
		return "", false, fmt.Errorf("consul get %s: %w", key, err)
	}
	if pair == nil {
		return "", false, nil
	}
	return string(pair.Value), true, nil
}

func (s *ConsulStore) Put(ctx context.Context, key, value string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	pair := &api.KVPair{Key: s.key(key), Value: []byte(value)}
	if _, err := s.kv.Put(pair, (&api.WriteOptions{}).WithContext(opCtx)); err != nil {
		return fmt.Errorf("consul put %s: %w", key, err)
	}
	return nil
}

// CommitIf pins the condition key to the modify index it had when its value
// was checked, so a concurrent writer between the read and the txn fails the
// commit.
func (s *ConsulStore) CommitIf(ctx context.Context, cond Condition, puts ...KeyValue) (bool, error) {
	opts, cancel := s.queryOptions(ctx)
	defer cancel()

	pair, _, err := s.kv.Get(s.key(cond.Key), opts)
	if err != nil {
		return false, fmt.Errorf("consul get %s: %w", cond.Key, err)
	}
	var check *api.KVTxnOp
	if pair == nil {
		if !cond.holds("", false) {
			return false, nil
		}
		check = &api.KVTxnOp{Verb: api.KVCheckNotExists, Key: s.key(cond.Key)}
	} else {
		if !cond.holds(string(pair.Value), true) {
			return false, nil
		}
		check = &api.KVTxnOp{Verb: api.KVCheckIndex, Key: s.key(cond.Key), Index: pair.ModifyIndex}
	}

	ops := api.KVTxnOps{check}
	for _, kv := range puts {
		ops = append(ops, &api.KVTxnOp{Verb: api.KVSet, Key: s.key(kv.Key), Value: []byte(kv.Value)})
	}
	ok, _, _, err := s.kv.Txn(ops, opts)
	if err != nil {
		return false, fmt.Errorf("consul txn on %s: %w", cond.Key, err)
	}
	return ok, nil
}

func (s *ConsulStore) Close() error {
	return nil
}
