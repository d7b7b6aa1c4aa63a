package offline

import (
	"fmt"
)

// HasQueuedOps reports whether any queued operation concerns the product.
// A synced temporary id and its server id name the same product.
func (r *Repository) HasQueuedOps(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idMap := r.idMap()
	want := r.canonical(id, idMap)
	for _, op := range r.productOps() {
		if r.canonical(op.Ref(), idMap) == want {
			return true
		}
	}
	return false
}

// OverlayPending lays the local changes still queued over a product list
// fetched from the server: placeholders of unsynced creations come first,
// queued edits are applied, queued deletions are dropped and the quantities
// of unsynced sale lines are taken off. With replace set the result also
// becomes the cache.
func (r *Repository) OverlayPending(products []Product, replace bool) []Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	idMap := r.idMap()
	cached := make(map[string]Product)
	for _, p := range r.cachedProducts() {
		cached[p.ID] = p
	}

	var placeholders []Product
	placeholderIDs := make(map[string]bool)
	patches := make(map[string]ProductPatch)
	deleted := make(map[string]bool)
	for _, op := range r.productOps() {
		switch op.Type {
		case OpCreate:
			p, ok := cached[op.TempID]
			if !ok && op.Fields != nil {
				p, ok = op.Fields.product(op.TempID), true
			}
			if ok {
				placeholders = append(placeholders, p)
				placeholderIDs[p.ID] = true
			}
		case OpUpdate:
			if op.Patch == nil {
				continue
			}
			id := r.canonical(op.TargetID, idMap)
			if prev, ok := patches[id]; ok {
				patches[id] = prev.Merge(*op.Patch)
			} else {
				patches[id] = *op.Patch
			}
		case OpDelete:
			deleted[r.canonical(op.TargetID, idMap)] = true
		}
	}

	// Placeholders come from the cache, which already reflects offline sales.
	var lines []SaleItem
	for _, sale := range r.offlineSales() {
		for _, it := range sale.Items {
			id := r.canonical(it.ProductID, idMap)
			if it.RemoteSaleID != "" || placeholderIDs[id] {
				continue
			}
			it.ProductID = id
			lines = append(lines, it)
		}
	}

	out := make([]Product, 0, len(placeholders)+len(products))
	out = append(out, placeholders...)
	server := make([]Product, 0, len(products))
	for _, p := range products {
		if deleted[p.ID] {
			continue
		}
		if patch, ok := patches[p.ID]; ok {
			p = patch.Apply(p)
		}
		server = append(server, p)
	}
	out = append(out, takeStock(server, lines)...)

	if replace {
		r.store.Save(ProductCacheKey, out)
	}
	return out
}

// MarkRejected records that the creation behind tempID was given up on.
// Its placeholder leaves the cache and later references to it fail.
func (r *Repository) MarkRejected(tempID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rejected := r.rejectedIDs()
	if rejected == nil {
		rejected = make(map[string]bool)
	}
	rejected[tempID] = true
	r.store.Save(RejectedIDsKey, rejected)
	r.removeCached(tempID)
}

// IsRejected reports whether ref names a creation that was given up on.
func (r *Repository) IsRejected(ref string) bool {
	if !r.IsTempID(ref) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejectedIDs()[ref]
}

// RejectedReference returns the first line of items, not yet accepted
// remotely, whose product was rejected.
func (r *Repository) RejectedReference(items []SaleItem) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rejected := r.rejectedIDs()
	for _, it := range items {
		if it.RemoteSaleID == "" && rejected[it.ProductID] {
			return it.ProductID, true
		}
	}
	return "", false
}

// CheckCart fails when a cart line names a rejected product.
func (r *Repository) CheckCart(req CheckoutRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkRejected(req)
}

func (r *Repository) checkRejected(req CheckoutRequest) error {
	rejected := r.rejectedIDs()
	for _, it := range req.Items {
		if rejected[it.ProductID] {
			return fmt.Errorf("%w: %s was rejected by the server", ErrUnknownProduct, it.ProductID)
		}
	}
	return nil
}

func (r *Repository) canonical(id string, idMap IDMap) string {
	if r.IsTempID(id) {
		if serverID, ok := idMap[id]; ok && serverID != "" {
			return serverID
		}
	}
	return id
}
