package sync

import (
	"context"
	"fmt"

	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/remote"
)

// ProductsAPI is the remote inventory collection the engine replays
// product operations against.
type ProductsAPI interface {
	Create(ctx context.Context, fields offline.ProductFields) (offline.Product, error)
	Update(ctx context.Context, id string, patch offline.ProductPatch) (offline.Product, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context, params remote.ListParams) (remote.ProductList, error)
}

// SalesAPI records one sold product line remotely.
type SalesAPI interface {
	Create(ctx context.Context, req remote.SaleRequest) (remote.Sale, error)
}

// APIs bundles the collaborators of a full pass. A nil member skips its queue.
type APIs struct {
	Products ProductsAPI
	Sales    SalesAPI
}

type ProductResult struct {
	Synced    int
	Remaining []offline.ProductOperation
	Rejected  []offline.ProductOperation
	IDMap     offline.IDMap
}

type SaleResult struct {
	Synced    int
	Remaining []offline.OfflineSale
	Rejected  []offline.OfflineSale
}

// Summary is the outcome of SyncAll, reported to the UI as counts only.
type Summary struct {
	ProductsSynced int `json:"productsSynced"`
	SalesSynced    int `json:"salesSynced"`
	RemainingOps   int `json:"remainingOps"`
	RemainingSales int `json:"remainingSales"`
	Rejected       int `json:"rejected"`
}

func (s Summary) String() string {
	return fmt.Sprintf("products %d synced/%d left, sales %d synced/%d left, %d rejected",
		s.ProductsSynced, s.RemainingOps, s.SalesSynced, s.RemainingSales, s.Rejected)
}
