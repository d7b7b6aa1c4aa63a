package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kashflow-sync/internal/config"
	"kashflow-sync/internal/database"
	"kashflow-sync/internal/logger"
)

const defaultTimeout = 5 * time.Second

// Store reads and writes JSON values by string key. It never reports
// failures to callers: reads fall back, writes are dropped, both with a
// warning in the log.
type Store struct {
	backend Backend
	timeout time.Duration
}

// New wraps backend. A nil backend behaves as unavailable storage.
func New(backend Backend) *Store {
	return &Store{backend: backend, timeout: defaultTimeout}
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg config.LocalStorage) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Type {
	case "memory":
		backend = NewMemoryBackend()
	case "sqlite", "mysql":
		var db *database.Database
		if cfg.Type == "sqlite" {
			db, err = database.NewSQLite(cfg.FilePath)
		} else {
			db, err = database.NewMySQL(cfg.MySQL)
		}
		if err != nil {
			return nil, err
		}
		backend, err = NewSQLBackend(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		backend = NewRedisBackend(client, cfg.Redis.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported local storage type %q", cfg.Type)
	}
	return New(backend), nil
}

func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Save serialises value and writes it under key.
func (s *Store) Save(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Log.Warn("Failed to encode local storage value", zap.String("key", key), zap.Error(err))
		return
	}
	if s.backend == nil {
		logger.Log.Warn("Failed to write local storage", zap.String("key", key), zap.String("reason", "storage unavailable"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Set(ctx, key, raw); err != nil {
		logger.Log.Warn("Failed to write local storage", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) read(key string) ([]byte, bool) {
	if s.backend == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		logger.Log.Warn("Failed to read local storage", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// Load decodes the value stored under key, returning fallback when the key
// is absent, unreadable or holds corrupt JSON.
func Load[T any](s *Store, key string, fallback T) T {
	raw, ok := s.read(key)
	if !ok {
		return fallback
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Log.Warn("Failed to decode local storage value", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return v
}
