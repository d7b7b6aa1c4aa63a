package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kashflow-sync/internal/config"
	"kashflow-sync/internal/logger"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/remote"
	"kashflow-sync/internal/store"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

const (
	TriggerManual    = "manual"
	TriggerReconnect = "reconnect"
	TriggerScheduled = "scheduled"
)

// Status is a point-in-time view of the manager for the UI.
type Status struct {
	State       string                `json:"state"`
	Online      bool                  `json:"online"`
	LastRunAt   *time.Time            `json:"last_run_at,omitempty"`
	LastSummary *Summary              `json:"last_summary,omitempty"`
	LastError   string                `json:"last_error,omitempty"`
	Pending     offline.PendingCounts `json:"pending"`
}

// Manager serialises sync passes. Only one pass runs at a time; a trigger
// arriving meanwhile gets ErrAlreadyRunning.
type Manager struct {
	cfg     config.SyncConfig
	engine  *Engine
	repo    *offline.Repository
	apis    APIs
	store   store.Store
	signal  *Signal
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	status  string
	lastRun time.Time
	lastSum *Summary
	lastErr error
}

// NewManager wires a manager. store may be nil, in which case passes are
// not recorded. signal may be nil when connectivity is not tracked.
func NewManager(cfg config.SyncConfig, engine *Engine, repo *offline.Repository, apis APIs, st store.Store, signal *Signal) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg,
		engine: engine,
		repo:   repo,
		apis:   apis,
		store:  st,
		signal: signal,
		ctx:    ctx,
		cancel: cancel,
		status: StatusIdle,
	}
}

// Trigger runs one full pass unless one is already in flight. A panic in
// the pass is returned as an error once the pass is recorded as finished.
func (m *Manager) Trigger(ctx context.Context, reason string) (summary Summary, err error) {
	m.mu.Lock()
	if m.status == StatusRunning {
		m.mu.Unlock()
		return Summary{}, ErrAlreadyRunning
	}
	m.status = StatusRunning
	m.mu.Unlock()

	logger.Log.Info("Starting sync pass", zap.String("trigger", reason))

	history := &store.SyncHistory{
		ID:        uuid.New().String(),
		Trigger:   reason,
		StartedAt: time.Now().UTC(),
		Status:    store.StatusRunning,
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Sync pass panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("sync pass panicked: %v", r)
		}
		m.recordFinish(history, summary, err)

		m.mu.Lock()
		m.status = StatusIdle
		m.lastRun = history.StartedAt
		m.lastSum = &summary
		m.lastErr = err
		m.mu.Unlock()
	}()
	m.recordStart(ctx, history)

	summary, err = m.engine.SyncAll(ctx, m.apis)
	if err == nil && m.cfg.RefreshCacheAfterSync && m.apis.Products != nil {
		if rerr := m.refreshCache(ctx); rerr != nil {
			logger.Log.Warn("Failed to refresh product cache", zap.Error(rerr))
		}
	}
	return summary, err
}

// refreshCache merges the server's product list into the cache. Changes
// still queued are laid over it so no placeholder or pending edit is lost.
func (m *Manager) refreshCache(ctx context.Context) error {
	limit := m.cfg.RefreshPageSize
	if limit <= 0 {
		limit = 500
	}
	var all []offline.Product
	for page := 1; ; page++ {
		list, err := m.apis.Products.List(ctx, remote.ListParams{Page: page, Limit: limit})
		if err != nil {
			return err
		}
		all = append(all, list.Items...)
		if len(list.Items) < limit || (list.Total > 0 && len(all) >= list.Total) {
			break
		}
	}
	merged := m.repo.OverlayPending(all, true)
	logger.Log.Debug("Refreshed product cache", zap.Int("products", len(merged)))
	return nil
}

func (m *Manager) recordStart(ctx context.Context, h *store.SyncHistory) {
	if m.store == nil {
		return
	}
	if err := m.store.CreateSyncHistory(ctx, h); err != nil {
		logger.Log.Warn("Failed to record sync start", zap.Error(err))
	}
}

func (m *Manager) recordFinish(h *store.SyncHistory, summary Summary, err error) {
	if m.store == nil {
		return
	}
	h.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	h.ProductsSynced = summary.ProductsSynced
	h.SalesSynced = summary.SalesSynced
	h.RemainingOps = summary.RemainingOps
	h.RemainingSales = summary.RemainingSales
	h.Rejected = summary.Rejected
	h.Status = store.StatusCompleted
	if err != nil {
		h.Status = store.StatusFailed
		h.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	// The pass context may be cancelled by now; the row must still close.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.UpdateSyncHistory(ctx, h); err != nil {
		logger.Log.Warn("Failed to record sync result", zap.Error(err))
	}
}

// Watch triggers a pass whenever the signal turns online.
func (m *Manager) Watch() {
	if m.signal == nil {
		return
	}
	ch := m.signal.Subscribe()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.signal.Unsubscribe(ch)
		for {
			select {
			case <-m.ctx.Done():
				return
			case online := <-ch:
				if !online {
					continue
				}
				if _, err := m.Trigger(m.ctx, TriggerReconnect); err != nil && !errors.Is(err, ErrAlreadyRunning) && m.ctx.Err() == nil {
					logger.Log.Error("Reconnect sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop ends Watch and cancels a pass it started.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) Online() bool {
	return m.signal == nil || m.signal.Online()
}

func (m *Manager) GetStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		State:       m.status,
		LastSummary: m.lastSum,
	}
	if !m.lastRun.IsZero() {
		t := m.lastRun
		st.LastRunAt = &t
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	st.Online = m.Online()
	st.Pending = m.repo.Pending()
	return st
}

func (m *Manager) History(ctx context.Context, limit, offset int) ([]*store.SyncHistory, error) {
	if m.store == nil {
		return []*store.SyncHistory{}, nil
	}
	return m.store.GetSyncHistory(ctx, limit, offset)
}

func (m *Manager) Rejections(ctx context.Context, limit, offset int) ([]*store.Rejection, error) {
	if m.store == nil {
		return []*store.Rejection{}, nil
	}
	return m.store.ListRejections(ctx, limit, offset)
}
