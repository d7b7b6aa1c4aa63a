package offline

import "time"

// ProductSyncResult is what one reconciliation pass over the product
// queue hands back to the repository.
type ProductSyncResult struct {
	Snapshot  []ProductOperation // queue as read at the start of the pass
	Remaining []ProductOperation // snapshot entries still pending
	NewIDs    IDMap              // temp id -> server id learned in the pass
	Created   map[string]Product // temp id -> product returned by the server
}

// CommitProductSync persists a product pass. Entries queued or coalesced
// while the pass was in flight are merged in by entry id rather than
// overwritten.
func (r *Repository) CommitProductSync(res ProductSyncResult) IDMap {
	r.mu.Lock()
	defer r.mu.Unlock()

	idMap := r.idMap().Merge(res.NewIDs)
	r.store.Save(ProductIDMapKey, idMap)

	ops := MergeProductOps(res.Snapshot, res.Remaining, r.productOps(), r.now().UTC())
	r.store.Save(ProductOpsKey, ops)

	if len(res.Created) > 0 {
		// Edits to a placeholder made during the pass are still queued; show them.
		pendingEdits := make(map[string]ProductPatch)
		for _, op := range ops {
			if op.Type == OpUpdate && op.Patch != nil {
				pendingEdits[op.TargetID] = *op.Patch
			}
		}
		cache := r.cachedProducts()
		for i, p := range cache {
			if created, ok := res.Created[p.ID]; ok {
				if patch, edited := pendingEdits[p.ID]; edited {
					created = patch.Apply(created)
				}
				cache[i] = created
			}
		}
		r.store.Save(ProductCacheKey, cache)
	}
	return idMap
}

// CommitSaleSync persists a sales pass, keeping sales recorded meanwhile.
func (r *Repository) CommitSaleSync(snapshot, remaining []OfflineSale) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Save(OfflineSalesKey, MergeSales(snapshot, remaining, r.offlineSales()))
}

// MergeProductOps computes the queue after a pass. current is the queue as
// stored now; snapshot and remaining come from the pass.
//
//   - entries absent from snapshot were queued during the pass and are kept;
//   - snapshot entries still pending keep their pass outcome unless they were
//     coalesced meanwhile, in which case the newer revision wins;
//   - synced entries are dropped, except a creation coalesced after it synced,
//     which becomes an update of the now known product;
//   - a synced creation deleted during the pass becomes a delete.
func MergeProductOps(snapshot, remaining, current []ProductOperation, now time.Time) []ProductOperation {
	snap := make(map[string]ProductOperation, len(snapshot))
	for _, op := range snapshot {
		snap[op.ID] = op
	}
	rem := make(map[string]ProductOperation, len(remaining))
	for _, op := range remaining {
		rem[op.ID] = op
	}
	inCurrent := make(map[string]bool, len(current))

	merged := make([]ProductOperation, 0, len(current))
	for _, op := range current {
		inCurrent[op.ID] = true
		before, seen := snap[op.ID]
		if !seen {
			merged = append(merged, op)
			continue
		}
		revised := op.Revision > before.Revision
		if after, pending := rem[op.ID]; pending {
			if revised {
				op.Attempts = after.Attempts
				merged = append(merged, op)
			} else {
				merged = append(merged, after)
			}
			continue
		}
		if !revised {
			continue
		}
		if op.Type == OpCreate && op.Fields != nil {
			merged = append(merged, NewUpdateOp(op.TempID, PatchFromFields(*op.Fields), op.TempID, now))
			continue
		}
		merged = append(merged, op)
	}

	for _, op := range snapshot {
		if op.Type != OpCreate || inCurrent[op.ID] {
			continue
		}
		if _, pending := rem[op.ID]; pending {
			continue
		}
		merged = append(merged, NewDeleteOp(op.TempID, op.TempID, now))
	}
	return merged
}

// MergeSales computes the sales queue after a pass.
func MergeSales(snapshot, remaining, current []OfflineSale) []OfflineSale {
	snap := make(map[string]bool, len(snapshot))
	for _, s := range snapshot {
		snap[s.ID] = true
	}
	rem := make(map[string]OfflineSale, len(remaining))
	for _, s := range remaining {
		rem[s.ID] = s
	}

	merged := make([]OfflineSale, 0, len(current))
	for _, s := range current {
		if !snap[s.ID] {
			merged = append(merged, s)
			continue
		}
		if after, pending := rem[s.ID]; pending {
			merged = append(merged, after)
		}
	}
	return merged
}
