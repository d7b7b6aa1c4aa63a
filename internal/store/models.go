package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SyncHistory is one reconciliation pass.
type SyncHistory struct {
	ID             string         `db:"id" json:"id"`
	Trigger        string         `db:"trigger_reason" json:"trigger"`
	StartedAt      time.Time      `db:"started_at" json:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at" json:"-"`
	ProductsSynced int            `db:"products_synced" json:"products_synced"`
	SalesSynced    int            `db:"sales_synced" json:"sales_synced"`
	RemainingOps   int            `db:"remaining_ops" json:"remaining_ops"`
	RemainingSales int            `db:"remaining_sales" json:"remaining_sales"`
	Rejected       int            `db:"rejected" json:"rejected"`
	Status         string         `db:"status" json:"status"`
	ErrorMessage   sql.NullString `db:"error_message" json:"-"`
}

const (
	EntryProductOp   = "product_op"
	EntryOfflineSale = "offline_sale"
)

// Rejection is a queue entry given up on after repeated permanent failures.
type Rejection struct {
	ID          string          `db:"id" json:"id"`
	EntryType   string          `db:"entry_type" json:"entry_type"`
	EntryID     string          `db:"entry_id" json:"entry_id"`
	Fingerprint string          `db:"fingerprint" json:"fingerprint"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   string          `db:"last_error" json:"last_error"`
	RejectedAt  time.Time       `db:"rejected_at" json:"rejected_at"`
}
