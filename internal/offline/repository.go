package offline

import (
	"strings"
	"sync"
	"time"

	"kashflow-sync/internal/localstore"
)

// Keys of the persisted offline collections.
const (
	OfflineSalesKey = "kashflow_offline_sales_v1"
	ProductCacheKey = "kashflow_product_cache_v1"
	ProductOpsKey   = "kashflow_product_ops_v1"
	ProductIDMapKey = "kashflow_product_id_map_v1"
	RejectedIDsKey  = "kashflow_product_rejected_v1"
)

const DefaultTempIDPrefix = "temp-"

// Repository is the single writer of the offline queues, the identifier
// map and the product cache. Every mutation is a read-modify-write of the
// affected keys under one lock.
type Repository struct {
	mu         sync.Mutex
	store      *localstore.Store
	tempPrefix string
	now        func() time.Time
}

func NewRepository(store *localstore.Store, tempPrefix string) *Repository {
	if tempPrefix == "" {
		tempPrefix = DefaultTempIDPrefix
	}
	return &Repository{
		store:      store,
		tempPrefix: tempPrefix,
		now:        time.Now,
	}
}

func (r *Repository) TempIDPrefix() string { return r.tempPrefix }

// IsTempID reports whether ref is a client-generated placeholder id.
func (r *Repository) IsTempID(ref string) bool {
	return strings.HasPrefix(ref, r.tempPrefix)
}

// ResolveReference maps a temporary id to its server id. Real ids are
// returned unchanged; a temporary id not yet in idMap resolves to false.
func (r *Repository) ResolveReference(ref string, idMap IDMap) (string, bool) {
	if !r.IsTempID(ref) {
		return ref, true
	}
	id, ok := idMap[ref]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ResolveItems maps the product reference of every line not yet accepted
// remotely to a server id. It fails if any reference is unresolved.
func (r *Repository) ResolveItems(items []SaleItem, idMap IDMap) ([]string, bool) {
	ids := make([]string, len(items))
	for i, it := range items {
		if it.RemoteSaleID != "" {
			continue
		}
		id, ok := r.ResolveReference(it.ProductID, idMap)
		if !ok {
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

func (r *Repository) ProductOps() []ProductOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.productOps()
}

func (r *Repository) SetProductOps(ops []ProductOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Save(ProductOpsKey, nonNil(ops))
}

func (r *Repository) OfflineSales() []OfflineSale {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offlineSales()
}

func (r *Repository) SetOfflineSales(sales []OfflineSale) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Save(OfflineSalesKey, nonNil(sales))
}

func (r *Repository) CachedProducts() []Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cachedProducts()
}

// SetCachedProducts overwrites the cache wholesale.
func (r *Repository) SetCachedProducts(products []Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Save(ProductCacheKey, nonNil(products))
}

func (r *Repository) IDMap() IDMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idMap()
}

func (r *Repository) SetIDMap(m IDMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == nil {
		m = IDMap{}
	}
	r.store.Save(ProductIDMapKey, m)
}

type PendingCounts struct {
	ProductOps int `json:"product_ops"`
	Sales      int `json:"sales"`
}

func (r *Repository) Pending() PendingCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PendingCounts{
		ProductOps: len(r.productOps()),
		Sales:      len(r.offlineSales()),
	}
}

func (r *Repository) productOps() []ProductOperation {
	return localstore.Load(r.store, ProductOpsKey, []ProductOperation{})
}

func (r *Repository) offlineSales() []OfflineSale {
	return localstore.Load(r.store, OfflineSalesKey, []OfflineSale{})
}

func (r *Repository) cachedProducts() []Product {
	return localstore.Load(r.store, ProductCacheKey, []Product{})
}

func (r *Repository) idMap() IDMap {
	return localstore.Load(r.store, ProductIDMapKey, IDMap{})
}

func (r *Repository) rejectedIDs() map[string]bool {
	return localstore.Load(r.store, RejectedIDsKey, map[string]bool{})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
