package store

import (
	"context"
)

type Store interface {
	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	UpdateSyncHistory(ctx context.Context, history *SyncHistory) error
	GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error)

	// Rejections
	CreateRejection(ctx context.Context, rejection *Rejection) error
	ListRejections(ctx context.Context, limit, offset int) ([]*Rejection, error)

	// General
	Close() error
}
