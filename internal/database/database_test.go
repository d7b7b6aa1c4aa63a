package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.DB.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT, updated_at TIMESTAMP)`)
	require.NoError(t, err)
	return db
}

func TestExecTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.ExecTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, db.Upsert("kv", "k", "v"), "a", "1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestUpsertReplacesValue(t *testing.T) {
	db := openTestDB(t)
	stmt := db.Upsert("kv", "k", "v")

	_, err := db.DB.Exec(stmt, "a", "1")
	require.NoError(t, err)
	_, err = db.DB.Exec(stmt, "a", "2")
	require.NoError(t, err)

	var v string
	require.NoError(t, db.DB.QueryRow(`SELECT v FROM kv WHERE k = ?`, "a").Scan(&v))
	assert.Equal(t, "2", v)
}

func TestUpsertMySQLDialect(t *testing.T) {
	d := &Database{Driver: DriverMySQL}
	assert.Contains(t, d.Upsert("kv", "k", "v"), "ON DUPLICATE KEY UPDATE v = VALUES(v)")
}
