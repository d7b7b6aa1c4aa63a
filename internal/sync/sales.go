package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kashflow-sync/internal/logger"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/remote"
	"kashflow-sync/internal/store"
)

// SyncOfflineSales submits every queued sale as one remote sale per line
// item. A sale is only submitted once all of its product references
// resolve, and it leaves the queue only when every line was accepted.
// Accepted lines are marked so a retry does not submit them twice. A sale
// with a line for a rejected product is rejected whole.
func (e *Engine) SyncOfflineSales(ctx context.Context, api SalesAPI) SaleResult {
	snapshot := e.repo.OfflineSales()
	if len(snapshot) == 0 {
		return SaleResult{Remaining: []offline.OfflineSale{}}
	}
	idMap := e.repo.IDMap()

	remaining := make([]offline.OfflineSale, 0, len(snapshot))
	var rejected []offline.OfflineSale
	synced := 0

	for i, sale := range snapshot {
		if ctx.Err() != nil {
			remaining = append(remaining, snapshot[i:]...)
			break
		}

		if ref, bad := e.repo.RejectedReference(sale.Items); bad {
			sale.Attempts++
			err := fmt.Errorf("sale %s line for %s: %w", sale.ID, ref, errRejectedProduct)
			logger.Log.Warn("Offline sale references a rejected product", zap.String("sale_id", sale.ID), zap.String("product_id", ref))
			if e.reject(ctx, store.EntryOfflineSale, sale.ID, sale, sale.Attempts, err) {
				rejected = append(rejected, sale)
				continue
			}
			remaining = append(remaining, sale)
			continue
		}

		productIDs, ok := e.repo.ResolveItems(sale.Items, idMap)
		if !ok {
			logger.Log.Debug("Deferring sale with unsynced products", zap.String("sale_id", sale.ID))
			remaining = append(remaining, sale)
			continue
		}

		sent, err := SubmitSale(ctx, api, sale, productIDs, e.workers)
		if err == nil {
			synced++
			continue
		}

		sent.Attempts++
		logger.Log.Warn("Offline sale failed",
			zap.String("sale_id", sale.ID),
			zap.Int("lines_pending", sent.Pending()),
			zap.Int("attempts", sent.Attempts),
			zap.Error(err))
		if e.shouldReject(err, sent.Attempts) && e.reject(ctx, store.EntryOfflineSale, sent.ID, sent, sent.Attempts, err) {
			rejected = append(rejected, sent)
			continue
		}
		remaining = append(remaining, sent)
	}

	e.repo.CommitSaleSync(snapshot, remaining)

	return SaleResult{
		Synced:    synced,
		Remaining: remaining,
		Rejected:  rejected,
	}
}

// SubmitSale posts the lines of sale still lacking a RemoteSaleID, at most
// workers at a time, and returns the sale with accepted lines marked.
// productIDs holds the server id for each line. The error is the first
// line failure.
func SubmitSale(ctx context.Context, api SalesAPI, sale offline.OfflineSale, productIDs []string, workers int) (offline.OfflineSale, error) {
	items := make([]offline.SaleItem, len(sale.Items))
	copy(items, sale.Items)

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i := range items {
		if items[i].RemoteSaleID != "" {
			continue
		}
		g.Go(func() error {
			res, err := api.Create(ctx, remote.SaleRequest{
				ProductID:    productIDs[i],
				QuantitySold: items[i].Quantity,
			})
			if err != nil {
				return fmt.Errorf("line %d (%s): %w", i, items[i].ProductID, err)
			}
			items[i].RemoteSaleID = res.ID
			if res.ID == "" {
				items[i].RemoteSaleID = "accepted"
			}
			return nil
		})
	}
	err := g.Wait()

	sale.Items = items
	return sale, err
}
