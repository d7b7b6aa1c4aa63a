package sync

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"kashflow-sync/internal/logger"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/remote"
)

var ErrAlreadyRunning = errors.New("sync is already running")

// EngineOptions tunes a reconciliation Engine.
type EngineOptions struct {
	// Workers bounds the concurrent line-item submissions of one sale.
	Workers int
	// MaxAttempts > 0 moves an entry that failed permanently that many
	// times to the dead letter. Zero keeps every entry queued forever.
	MaxAttempts int
	DeadLetter  *DeadLetter
}

// Engine replays the offline queues against the remote service.
// It holds no queue state of its own; everything lives in the repository.
type Engine struct {
	repo        *offline.Repository
	deadLetter  *DeadLetter
	workers     int
	maxAttempts int
}

func NewEngine(repo *offline.Repository, opts EngineOptions) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Engine{
		repo:        repo,
		deadLetter:  opts.DeadLetter,
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
	}
}

// SyncAll runs the product pass and then the sales pass, so sales that
// reference products created offline find their server ids.
func (e *Engine) SyncAll(ctx context.Context, apis APIs) (Summary, error) {
	var summary Summary

	if apis.Products != nil {
		res := e.SyncProductOps(ctx, apis.Products)
		summary.ProductsSynced = res.Synced
		summary.RemainingOps = len(res.Remaining)
		summary.Rejected += len(res.Rejected)
	} else {
		summary.RemainingOps = len(e.repo.ProductOps())
	}

	if apis.Sales != nil {
		res := e.SyncOfflineSales(ctx, apis.Sales)
		summary.SalesSynced = res.Synced
		summary.RemainingSales = len(res.Remaining)
		summary.Rejected += len(res.Rejected)
	} else {
		summary.RemainingSales = len(e.repo.OfflineSales())
	}

	logger.Log.Info("Sync pass finished",
		zap.Int("products_synced", summary.ProductsSynced),
		zap.Int("remaining_ops", summary.RemainingOps),
		zap.Int("sales_synced", summary.SalesSynced),
		zap.Int("remaining_sales", summary.RemainingSales),
		zap.Int("rejected", summary.Rejected))

	return summary, ctx.Err()
}

// shouldReject reports whether an entry that just failed with err for the
// attempts-th time leaves the queue.
func (e *Engine) shouldReject(err error, attempts int) bool {
	return e.deadLetter != nil &&
		e.maxAttempts > 0 &&
		attempts >= e.maxAttempts &&
		remote.IsPermanent(err)
}

// discardNow reports whether err can never succeed on a retry and the
// entry leaves the queue regardless of its attempts.
func discardNow(err error) bool {
	return errors.Is(err, errNoServerID) || errors.Is(err, errRejectedProduct)
}

// reject takes the entry out of the queue, recording it in the dead letter
// when one is configured. If recording fails the entry must stay queued,
// so the caller keeps it.
func (e *Engine) reject(ctx context.Context, entryType, entryID string, entry any, attempts int, cause error) bool {
	if e.deadLetter != nil {
		if err := e.deadLetter.Record(ctx, entryType, entryID, entry, attempts, cause); err != nil {
			logger.Log.Error("Failed to record rejected entry",
				zap.String("entry_type", entryType),
				zap.String("entry_id", entryID),
				zap.Error(err))
			return false
		}
	}
	logger.Log.Warn("Entry rejected",
		zap.String("entry_type", entryType),
		zap.String("entry_id", entryID),
		zap.Int("attempts", attempts),
		zap.Bool("dead_lettered", e.deadLetter != nil),
		zap.NamedError("cause", cause))
	return true
}
