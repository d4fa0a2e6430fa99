package kv

import (
	"context"
	"errors"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
)

// EtcdStore talks to an etcd cluster. Reads are linearizable, which is the
// client default.
type EtcdStore struct {
	client *clientv3.Client
	kv     clientv3.KV
	config Config
}

var (
	_ Store = (*EtcdStore)(nil)
	_ Txn   = (*EtcdStore)(nil)
)

func NewEtcdStore(ctx context.Context, config Config) (*EtcdStore, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		Username:    config.Username,
		Password:    config.Password,
		Context:     ctx,
	})
	if err != nil {
		return nil, err
	}

	// the client balances over all endpoints; one live member is enough
	_, err = dialEach(ctx, config.Endpoints, func(ctx context.Context, endpoint string) (*clientv3.StatusResponse, error) {
		pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
		defer cancel()
		return client.Status(pingCtx, endpoint)
	})
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close etcd client: %w", cerr))
		}
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	var kv clientv3.KV = client.KV
	if config.Namespace != "" {
		kv = namespace.NewKV(client.KV, config.Namespace)
	}
	return &EtcdStore{client: client, kv: kv, config: config}, nil
}

func (s *EtcdStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.RequestTimeout)
}

func (s *EtcdStore) Get(ctx context.Context, key string) (string, bool, error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	resp, err := s.kv.Get(opCtx, key)
	if err != nil {
		return "", false, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (s *EtcdStore) Put(ctx context.Context, key, value string) error {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.kv.Put(opCtx, key, value); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

func (s *EtcdStore) CommitIf(ctx context.Context, cond Condition, puts ...KeyValue) (bool, error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	var cmp clientv3.Cmp
	if cond.Present {
		cmp = clientv3.Compare(clientv3.Value(cond.Key), "=", cond.Value)
	} else {
		cmp = clientv3.Compare(clientv3.CreateRevision(cond.Key), "=", 0)
	}
	ops := make([]clientv3.Op, 0, len(puts))
	for _, kv := range puts {
		ops = append(ops, clientv3.OpPut(kv.Key, kv.Value))
	}

	resp, err := s.kv.Txn(opCtx).If(cmp).Then(ops...).Commit()
	if err != nil {
		return false, fmt.Errorf("etcd txn on %s: %w", cond.Key, err)
	}
	return resp.Succeeded, nil
}

func (s *EtcdStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close etcd client: %w", err)
	}
	return nil
}
