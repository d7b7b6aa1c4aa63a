package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kashflow-sync/internal/config"
	"kashflow-sync/internal/database"
	"kashflow-sync/internal/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_history (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		trigger_reason VARCHAR(64) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NULL,
		products_synced INT NOT NULL DEFAULT 0,
		sales_synced INT NOT NULL DEFAULT 0,
		remaining_ops INT NOT NULL DEFAULT 0,
		remaining_sales INT NOT NULL DEFAULT 0,
		rejected INT NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL,
		error_message TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rejections (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		entry_type VARCHAR(32) NOT NULL,
		entry_id VARCHAR(64) NOT NULL,
		fingerprint VARCHAR(64) NOT NULL,
		payload TEXT NOT NULL,
		attempts INT NOT NULL,
		last_error TEXT NOT NULL,
		rejected_at TIMESTAMP NOT NULL
	)`,
}

// SQLStore keeps history and rejections in MySQL or SQLite.
type SQLStore struct {
	db *database.Database
}

func NewSQLStore(ctx context.Context, db *database.Database) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects to the state database selected by cfg. MySQL is retried
// while the server comes up.
func Open(ctx context.Context, cfg config.StateStorage) (*SQLStore, error) {
	var (
		db  *database.Database
		err error
	)
	switch cfg.Type {
	case "sqlite":
		db, err = database.NewSQLite(cfg.FilePath)
	case "mysql":
		maxRetries := 30
		for i := 0; i < maxRetries; i++ {
			db, err = database.NewMySQL(cfg.Connection())
			if err == nil {
				break
			}
			logger.Log.Info("Waiting for state DB...", zap.Error(err), zap.Int("attempt", i+1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	default:
		return nil, fmt.Errorf("unsupported state storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	s, err := NewSQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to migrate state store: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, trigger_reason, started_at, completed_at, products_synced, sales_synced, remaining_ops, remaining_sales, rejected, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB.ExecContext(ctx, query,
		history.ID,
		history.Trigger,
		history.StartedAt,
		history.CompletedAt,
		history.ProductsSynced,
		history.SalesSynced,
		history.RemainingOps,
		history.RemainingSales,
		history.Rejected,
		history.Status,
		history.ErrorMessage,
	)

	return err
}

func (s *SQLStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `UPDATE sync_history SET completed_at = ?, products_synced = ?, sales_synced = ?, remaining_ops = ?, remaining_sales = ?, rejected = ?, status = ?, error_message = ? WHERE id = ?`

	_, err := s.db.DB.ExecContext(ctx, query,
		history.CompletedAt,
		history.ProductsSynced,
		history.SalesSynced,
		history.RemainingOps,
		history.RemainingSales,
		history.Rejected,
		history.Status,
		history.ErrorMessage,
		history.ID,
	)

	return err
}

func (s *SQLStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, trigger_reason, started_at, completed_at, products_synced, sales_synced, remaining_ops, remaining_sales, rejected, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var h SyncHistory
		err := rows.Scan(
			&h.ID,
			&h.Trigger,
			&h.StartedAt,
			&h.CompletedAt,
			&h.ProductsSynced,
			&h.SalesSynced,
			&h.RemainingOps,
			&h.RemainingSales,
			&h.Rejected,
			&h.Status,
			&h.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}

func (s *SQLStore) CreateRejection(ctx context.Context, r *Rejection) error {
	query := `INSERT INTO rejections (id, entry_type, entry_id, fingerprint, payload, attempts, last_error, rejected_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB.ExecContext(ctx, query,
		r.ID,
		r.EntryType,
		r.EntryID,
		r.Fingerprint,
		string(r.Payload),
		r.Attempts,
		r.LastError,
		r.RejectedAt,
	)

	return err
}

func (s *SQLStore) ListRejections(ctx context.Context, limit, offset int) ([]*Rejection, error) {
	query := `SELECT id, entry_type, entry_id, fingerprint, payload, attempts, last_error, rejected_at
			  FROM rejections ORDER BY rejected_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rejections []*Rejection
	for rows.Next() {
		var (
			r       Rejection
			payload string
		)
		err := rows.Scan(
			&r.ID,
			&r.EntryType,
			&r.EntryID,
			&r.Fingerprint,
			&payload,
			&r.Attempts,
			&r.LastError,
			&r.RejectedAt,
		)
		if err != nil {
			return nil, err
		}
		r.Payload = []byte(payload)
		rejections = append(rejections, &r)
	}

	return rejections, rows.Err()
}
