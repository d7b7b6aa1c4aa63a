package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"kashflow-sync/internal/config"
	"kashflow-sync/internal/logger"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Database struct {
	DB     *sql.DB
	Driver string
}

// NewMySQL opens a MySQL connection pool and verifies it with a ping.
func NewMySQL(cfg config.DatabaseConnection) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Connection pool settings
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	logger.Log.Info("Connected to database",
		zap.String("driver", DriverMySQL),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &Database{DB: db, Driver: DriverMySQL}, nil
}

// NewSQLite opens (creating if needed) a SQLite database file on the device.
func NewSQLite(path string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	logger.Log.Info("Connected to database",
		zap.String("driver", DriverSQLite),
		zap.String("path", path),
	)

	return &Database{DB: db, Driver: DriverSQLite}, nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// ExecTx executes a function within a transaction
func (d *Database) ExecTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Upsert returns the dialect-specific statement inserting or replacing one
// row of a two-column key/value table.
func (d *Database) Upsert(table, keyCol, valueCol string) string {
	if d.Driver == DriverMySQL {
		return fmt.Sprintf("INSERT INTO %s (%s, %s, updated_at) VALUES (?, ?, NOW()) "+
			"ON DUPLICATE KEY UPDATE %s = VALUES(%s), updated_at = NOW()",
			table, keyCol, valueCol, valueCol, valueCol)
	}
	return fmt.Sprintf("INSERT INTO %s (%s, %s, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP) "+
		"ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s, updated_at = CURRENT_TIMESTAMP",
		table, keyCol, valueCol, keyCol, valueCol, valueCol)
}
