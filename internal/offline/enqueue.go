package offline

import (
	"github.com/google/uuid"
)

// EnqueueCreate records a product created while offline. The product is
// given a temporary id and shown at the top of the cache immediately.
func (r *Repository) EnqueueCreate(fields ProductFields) (Product, error) {
	if err := fields.Validate(); err != nil {
		return Product{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tempID := r.tempPrefix + uuid.NewString()
	product := fields.product(tempID)

	cache := r.cachedProducts()
	r.store.Save(ProductCacheKey, append([]Product{product}, cache...))

	ops := append(r.productOps(), NewCreateOp(tempID, fields, r.now().UTC()))
	r.store.Save(ProductOpsKey, ops)

	return product, nil
}

// EnqueueUpdate records an edit made while offline. An edit of a product
// whose creation or earlier edit is still queued is folded into that entry.
func (r *Repository) EnqueueUpdate(id string, patch ProductPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ops := r.productOps()
	coalesced := false
	for i := range ops {
		op := &ops[i]
		switch {
		case op.Type == OpCreate && op.TempID == id && op.Fields != nil:
			fields := patch.ApplyFields(*op.Fields)
			op.Fields = &fields
		case op.Type == OpUpdate && op.TargetID == id:
			merged := patch
			if op.Patch != nil {
				merged = op.Patch.Merge(patch)
			}
			op.Patch = &merged
		default:
			continue
		}
		op.Revision++
		coalesced = true
	}
	if !coalesced {
		ops = append(ops, NewUpdateOp(id, patch, r.dependency(id), r.now().UTC()))
	}
	r.store.Save(ProductOpsKey, ops)

	cache := r.cachedProducts()
	for i := range cache {
		if cache[i].ID == id {
			cache[i] = patch.Apply(cache[i])
		}
	}
	r.store.Save(ProductCacheKey, cache)
	return nil
}

// EnqueueDelete records a deletion made while offline. Deleting a product
// whose creation never synced drops that creation instead of queuing a
// delete.
func (r *Repository) EnqueueDelete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := r.productOps()
	kept := ops[:0]
	for _, op := range ops {
		if (op.Type == OpUpdate && op.TargetID == id) || (op.Type == OpCreate && op.TempID == id) {
			continue
		}
		kept = append(kept, op)
	}

	// A temporary id that already synced still names a server product.
	_, synced := r.idMap()[id]
	if !r.IsTempID(id) || synced {
		kept = append(kept, NewDeleteOp(id, r.dependency(id), r.now().UTC()))
	}
	r.store.Save(ProductOpsKey, kept)

	r.removeCached(id)
}

// RecordSale captures a checkout made while offline and takes the sold
// quantities off the cached stock.
func (r *Repository) RecordSale(req CheckoutRequest) (OfflineSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRejected(req); err != nil {
		return OfflineSale{}, err
	}
	cache := r.cachedProducts()
	sale, err := BuildSale(req, cache, r.now())
	if err != nil {
		return OfflineSale{}, err
	}
	r.store.Save(OfflineSalesKey, append(r.offlineSales(), sale))
	r.store.Save(ProductCacheKey, takeStock(cache, sale.Items))
	return sale, nil
}

// QueueSale stores a sale priced elsewhere, typically one whose online
// submission stopped part way. Lines with a RemoteSaleID are not resent.
func (r *Repository) QueueSale(sale OfflineSale) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.Save(OfflineSalesKey, append(r.offlineSales(), sale))
	r.store.Save(ProductCacheKey, takeStock(r.cachedProducts(), sale.Items))
}

// TakeStock lowers cached quantities after a sale accepted online.
func (r *Repository) TakeStock(items []SaleItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Save(ProductCacheKey, takeStock(r.cachedProducts(), items))
}

func takeStock(cache []Product, items []SaleItem) []Product {
	sold := make(map[string]int, len(items))
	for _, it := range items {
		sold[it.ProductID] += it.Quantity
	}
	for i := range cache {
		if n, ok := sold[cache[i].ID]; ok {
			cache[i].Quantity -= n
		}
	}
	return cache
}

// UpsertCachedProduct mirrors a remote change that was confirmed online.
func (r *Repository) UpsertCachedProduct(p Product) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cache := r.cachedProducts()
	for i := range cache {
		if cache[i].ID == p.ID {
			cache[i] = p
			r.store.Save(ProductCacheKey, cache)
			return
		}
	}
	r.store.Save(ProductCacheKey, append([]Product{p}, cache...))
}

func (r *Repository) RemoveCachedProduct(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeCached(id)
}

func (r *Repository) removeCached(id string) {
	cache := r.cachedProducts()
	kept := cache[:0]
	for _, p := range cache {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	r.store.Save(ProductCacheKey, kept)
}

func (r *Repository) dependency(id string) string {
	if r.IsTempID(id) {
		return id
	}
	return ""
}
