package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"kashflow-sync/internal/database"
)

// Backend is the raw device-local key-value area underneath a Store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

type memoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend keeps values in process memory only.
func NewMemoryBackend() Backend {
	return &memoryBackend{data: make(map[string][]byte)}
}

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryBackend) Close() error { return nil }

const kvTable = "kv_store"

type sqlBackend struct {
	db     *database.Database
	upsert string
}

// NewSQLBackend stores values in the kv_store table of a SQLite or MySQL
// database, creating the table if needed.
func NewSQLBackend(ctx context.Context, db *database.Database) (Backend, error) {
	ddl := `CREATE TABLE IF NOT EXISTS kv_store (
		store_key VARCHAR(191) NOT NULL PRIMARY KEY,
		store_value LONGTEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if db.Driver == database.DriverSQLite {
		ddl = `CREATE TABLE IF NOT EXISTS kv_store (
		store_key TEXT NOT NULL PRIMARY KEY,
		store_value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	}
	if _, err := db.DB.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", kvTable, err)
	}
	return &sqlBackend{
		db:     db,
		upsert: db.Upsert(kvTable, "store_key", "store_value"),
	}, nil
}

func (s *sqlBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT store_value FROM kv_store WHERE store_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (s *sqlBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.DB.ExecContext(ctx, s.upsert, key, string(value))
	return err
}

func (s *sqlBackend) Close() error {
	return s.db.Close()
}

type redisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend stores each value under prefix+key in a Redis instance
// local to the device.
func NewRedisBackend(client *redis.Client, prefix string) Backend {
	return &redisBackend{client: client, prefix: prefix}
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *redisBackend) Close() error {
	return r.client.Close()
}
