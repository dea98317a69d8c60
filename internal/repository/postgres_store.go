package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createKVTable = `CREATE TABLE IF NOT EXISTS wrs_kv (
	key   TEXT COLLATE "C" PRIMARY KEY,
	value BYTEA NOT NULL
)`

const upsertKV = `INSERT INTO wrs_kv (key, value) VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

// PostgresStore is a PostgreSQL implementation of the Store interface. All
// pairs live in one table whose key column uses byte-order collation, so
// ORDER BY key matches the ordering of the other backends.
type PostgresStore struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

// Migrate creates the key-value table when it doesn't exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.Exec(ctx, createKVTable); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Get retrieves a value by its key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var value []byte
	err := s.db.QueryRow(ctx, "SELECT value FROM wrs_kv WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %w", ErrStoreUnavailable, key, err)
	}
	return value, true, nil
}

// GetPrefix returns all pairs below prefix ordered by key.
func (s *PostgresStore) GetPrefix(ctx context.Context, prefix string) ([]KV, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, "SELECT key, value FROM wrs_kv WHERE starts_with(key, $1) ORDER BY key", prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %q: %w", ErrStoreUnavailable, prefix, err)
	}
	defer rows.Close()

	var out []KV
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("%w: scan %q: %w", ErrStoreUnavailable, prefix, err)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %q: %w", ErrStoreUnavailable, prefix, err)
	}
	return out, nil
}

// Put inserts or replaces a single key.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.Exec(ctx, upsertKV, key, nonNil(value)); err != nil {
		return fmt.Errorf("%w: put %q: %w", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Txn evaluates the conditions and applies one branch inside a single
// database transaction. Condition keys are serialized with transaction
// scoped advisory locks, taken in key order, so a concurrent Txn on the
// same keys observes the committed result of this one.
func (s *PostgresStore) Txn(ctx context.Context, conds []Condition, then, otherwise []KV) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	keys := make([]string, 0, len(conds))
	for _, c := range conds {
		keys = append(keys, c.Key)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", k); err != nil {
			return false, fmt.Errorf("%w: lock %q: %w", ErrStoreUnavailable, k, err)
		}
	}

	ok := true
	for _, c := range conds {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM wrs_kv WHERE key = $1)", c.Key).Scan(&exists); err != nil {
			return false, fmt.Errorf("%w: compare %q: %w", ErrStoreUnavailable, c.Key, err)
		}
		if exists != c.Exists {
			ok = false
			break
		}
	}

	ops := otherwise
	if ok {
		ops = then
	}
	if len(ops) > 0 {
		batch := &pgx.Batch{}
		for _, op := range ops {
			batch.Queue(upsertKV, op.Key, nonNil(op.Value))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return false, fmt.Errorf("%w: write: %w", ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
