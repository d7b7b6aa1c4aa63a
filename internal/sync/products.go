package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"kashflow-sync/internal/logger"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/store"
)

// SyncProductOps replays the product queue in dependency order. A create
// that succeeds records its temp id in the id map before any later
// operation is resolved; an update or delete whose reference cannot be
// resolved yet is kept without contacting the server. Failed operations
// stay queued and are retried by the next pass. A rejected create takes
// its placeholder out of the cache, and operations on it are rejected too.
func (e *Engine) SyncProductOps(ctx context.Context, api ProductsAPI) ProductResult {
	snapshot := e.repo.ProductOps()
	idMap := e.repo.IDMap()
	if len(snapshot) == 0 {
		return ProductResult{Remaining: []offline.ProductOperation{}, IDMap: idMap}
	}

	ordered := orderByDependency(snapshot)
	newIDs := make(offline.IDMap)
	created := make(map[string]offline.Product)
	remaining := make([]offline.ProductOperation, 0, len(ordered))
	var rejected []offline.ProductOperation
	synced := 0

	for i, op := range ordered {
		if ctx.Err() != nil {
			remaining = append(remaining, ordered[i:]...)
			break
		}

		err := e.applyProductOp(ctx, api, op, idMap, newIDs, created)
		switch {
		case err == nil:
			synced++
			continue
		case errors.Is(err, errUnresolved):
			logger.Log.Debug("Deferring operation on unsynced product", zap.String("op", op.String()))
			remaining = append(remaining, op)
			continue
		}

		op.Attempts++
		logger.Log.Warn("Product operation failed",
			zap.String("op", op.String()),
			zap.Int("attempts", op.Attempts),
			zap.Error(err))
		if (e.shouldReject(err, op.Attempts) || discardNow(err)) && e.reject(ctx, store.EntryProductOp, op.ID, op, op.Attempts, err) {
			if op.Type == offline.OpCreate {
				e.repo.MarkRejected(op.TempID)
			}
			rejected = append(rejected, op)
			continue
		}
		remaining = append(remaining, op)
	}

	merged := e.repo.CommitProductSync(offline.ProductSyncResult{
		Snapshot:  snapshot,
		Remaining: remaining,
		NewIDs:    newIDs,
		Created:   created,
	})

	return ProductResult{
		Synced:    synced,
		Remaining: remaining,
		Rejected:  rejected,
		IDMap:     merged,
	}
}

var (
	errUnresolved      = errors.New("product reference not yet synced")
	errNoServerID      = errors.New("server accepted the product without an id")
	errRejectedProduct = errors.New("product creation was rejected")
)

func (e *Engine) applyProductOp(
	ctx context.Context,
	api ProductsAPI,
	op offline.ProductOperation,
	idMap, newIDs offline.IDMap,
	created map[string]offline.Product,
) error {
	switch op.Type {
	case offline.OpCreate:
		if op.Fields == nil {
			return fmt.Errorf("create %s has no product data", op.TempID)
		}
		p, err := api.Create(ctx, *op.Fields)
		if err != nil {
			return err
		}
		if p.ID == "" {
			// Resending would create the product again.
			logger.Log.Error("Product created without an id",
				zap.String("temp_id", op.TempID),
				zap.String("sku", op.Fields.SKU),
				zap.Any("response", p))
			return fmt.Errorf("create %s: %w", op.TempID, errNoServerID)
		}
		idMap[op.TempID] = p.ID
		newIDs[op.TempID] = p.ID
		created[op.TempID] = p
		return nil

	case offline.OpUpdate:
		id, ok := e.repo.ResolveReference(op.TargetID, idMap)
		if !ok {
			return e.unresolved(op.TargetID)
		}
		var patch offline.ProductPatch
		if op.Patch != nil {
			patch = *op.Patch
		}
		_, err := api.Update(ctx, id, patch)
		return err

	case offline.OpDelete:
		id, ok := e.repo.ResolveReference(op.TargetID, idMap)
		if !ok {
			return e.unresolved(op.TargetID)
		}
		return api.Remove(ctx, id)
	}
	return fmt.Errorf("unknown operation type %q", op.Type)
}

func (e *Engine) unresolved(ref string) error {
	if e.repo.IsRejected(ref) {
		return fmt.Errorf("%s: %w", ref, errRejectedProduct)
	}
	return errUnresolved
}

// orderByDependency returns ops in queue order, except that an operation
// depending on a create queued after it is moved right behind that create.
func orderByDependency(ops []offline.ProductOperation) []offline.ProductOperation {
	createAt := make(map[string]int)
	for i, op := range ops {
		if op.Type == offline.OpCreate {
			createAt[op.TempID] = i
		}
	}

	ordered := make([]offline.ProductOperation, 0, len(ops))
	waiting := make(map[string][]offline.ProductOperation)
	for i, op := range ops {
		if at, ok := createAt[op.DependsOn]; ok && op.DependsOn != "" && at > i {
			waiting[op.DependsOn] = append(waiting[op.DependsOn], op)
			continue
		}
		ordered = append(ordered, op)
		if op.Type == offline.OpCreate {
			ordered = append(ordered, waiting[op.TempID]...)
			delete(waiting, op.TempID)
		}
	}
	return ordered
}
