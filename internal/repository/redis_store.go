package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisIndexKey is the sorted set holding every stored key.
const DefaultRedisIndexKey = "jthub:wrs:keys"

// conditionalWrite applies one of two write sets depending on key existence
// and records every written key in the lexicographic index.
//
// KEYS[1] = index sorted set
// KEYS[2..] = condition keys, then-branch keys, else-branch keys
// ARGV[1..3] = number of conditions, then ops, else ops
// ARGV[4..] = one "1"/"0" existence flag per condition, then the values of
// the then-branch and else-branch ops.
var conditionalWrite = redis.NewScript(`
local ncond = tonumber(ARGV[1])
local nthen = tonumber(ARGV[2])
local nelse = tonumber(ARGV[3])

local ok = 1
for i = 1, ncond do
	local exists = redis.call('EXISTS', KEYS[1 + i]) == 1
	if exists ~= (ARGV[3 + i] == '1') then
		ok = 0
		break
	end
end

local first, count = ncond, nthen
if ok == 0 then
	first, count = ncond + nthen, nelse
end

for i = 1, count do
	local key = KEYS[1 + first + i]
	redis.call('SET', key, ARGV[3 + first + i])
	redis.call('ZADD', KEYS[1], 0, key)
end
return ok
`)

// RedisStore is a Redis implementation of the Store interface. Values are
// plain string keys; a sorted set with equal scores provides ordered prefix
// scans through ZRANGEBYLEX.
type RedisStore struct {
	client  *redis.Client
	index   string
	timeout time.Duration
}

// NewRedisStore wraps client. An empty index falls back to
// DefaultRedisIndexKey.
func NewRedisStore(client *redis.Client, index string, timeout time.Duration) *RedisStore {
	if index == "" {
		index = DefaultRedisIndexKey
	}
	return &RedisStore{client: client, index: index, timeout: timeout}
}

// Get returns the value of key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %w", ErrStoreUnavailable, key, err)
	}
	return v, true, nil
}

// GetPrefix reads the key range from the index, then the values.
func (s *RedisStore) GetPrefix(ctx context.Context, prefix string) ([]KV, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	upper := "+"
	if end := prefixEnd(prefix); end != "" {
		upper = "(" + end
	}
	keys, err := s.client.ZRangeByLex(ctx, s.index, &redis.ZRangeBy{Min: "[" + prefix, Max: upper}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: scan %q: %w", ErrStoreUnavailable, prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: scan %q: %w", ErrStoreUnavailable, prefix, err)
	}
	out := make([]KV, 0, len(keys))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// indexed but gone
			continue
		}
		out = append(out, KV{Key: keys[i], Value: []byte(str)})
	}
	return out, nil
}

// Put writes key and indexes it in one MULTI block.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, 0)
		p.ZAdd(ctx, s.index, redis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put %q: %w", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Txn runs the conditional write as a single Lua script, which Redis
// executes atomically.
func (s *RedisStore) Txn(ctx context.Context, conds []Condition, then, otherwise []KV) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	keys := make([]string, 0, 1+len(conds)+len(then)+len(otherwise))
	args := make([]any, 0, 3+len(conds)+len(then)+len(otherwise))
	keys = append(keys, s.index)
	args = append(args, strconv.Itoa(len(conds)), strconv.Itoa(len(then)), strconv.Itoa(len(otherwise)))
	for _, c := range conds {
		keys = append(keys, c.Key)
		if c.Exists {
			args = append(args, "1")
		} else {
			args = append(args, "0")
		}
	}
	for _, op := range append(append([]KV{}, then...), otherwise...) {
		keys = append(keys, op.Key)
		args = append(args, nonNil(op.Value))
	}

	ok, err := conditionalWrite.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("%w: txn: %w", ErrStoreUnavailable, err)
	}
	return ok == 1, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
