package repository

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig holds the client settings of an EtcdStore.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
	Timeout     time.Duration
}

// EtcdStore is an etcd v3 implementation of the Store interface.
type EtcdStore struct {
	client  *clientv3.Client
	timeout time.Duration
}

// NewEtcdStore dials the configured endpoints.
func NewEtcdStore(cfg EtcdConfig) (*EtcdStore, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %v: %w", ErrStoreUnavailable, cfg.Endpoints, err)
	}
	return NewEtcdStoreFromClient(client, cfg.Timeout), nil
}

// NewEtcdStoreFromClient wraps an existing client.
func NewEtcdStoreFromClient(client *clientv3.Client, timeout time.Duration) *EtcdStore {
	return &EtcdStore{client: client, timeout: timeout}
}

// Get returns the value of key.
func (s *EtcdStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %w", ErrStoreUnavailable, key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

// GetPrefix returns all pairs below prefix, sorted by key on the server.
func (s *EtcdStore) GetPrefix(ctx context.Context, prefix string) ([]KV, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %q: %w", ErrStoreUnavailable, prefix, err)
	}
	out := make([]KV, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KV{Key: string(kv.Key), Value: kv.Value})
	}
	return out, nil
}

// Put writes a single key.
func (s *EtcdStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.Put(ctx, key, string(value)); err != nil {
		return fmt.Errorf("%w: put %q: %w", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Txn maps the conditions onto create-revision compares: a key exists iff
// its create revision is non-zero.
func (s *EtcdStore) Txn(ctx context.Context, conds []Condition, then, otherwise []KV) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	cmps := make([]clientv3.Cmp, 0, len(conds))
	for _, c := range conds {
		if c.Exists {
			cmps = append(cmps, clientv3.Compare(clientv3.CreateRevision(c.Key), ">", 0))
		} else {
			cmps = append(cmps, clientv3.Compare(clientv3.CreateRevision(c.Key), "=", 0))
		}
	}

	resp, err := s.client.Txn(ctx).If(cmps...).Then(putOps(then)...).Else(putOps(otherwise)...).Commit()
	if err != nil {
		return false, fmt.Errorf("%w: txn: %w", ErrStoreUnavailable, err)
	}
	return resp.Succeeded, nil
}

func putOps(kvs []KV) []clientv3.Op {
	ops := make([]clientv3.Op, 0, len(kvs))
	for _, kv := range kvs {
		ops = append(ops, clientv3.OpPut(kv.Key, string(kv.Value)))
	}
	return ops
}

// Ping asks the first endpoint for its status.
func (s *EtcdStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	endpoints := s.client.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("%w: no endpoints", ErrStoreUnavailable)
	}
	if _, err := s.client.Status(ctx, endpoints[0]); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the client.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
