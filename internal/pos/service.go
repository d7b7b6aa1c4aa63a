package pos

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"kashflow-sync/internal/logger"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/remote"
	"kashflow-sync/internal/sync"
)

// Connectivity reports whether the remote service is believed reachable.
type Connectivity interface {
	Online() bool
}

// Receipt is the answer to a checkout. Offline is set when the sale was
// queued instead of being accepted by the server.
type Receipt struct {
	Sale    offline.OfflineSale `json:"sale"`
	Offline bool                `json:"offline"`
}

// SalesHistory lists sales recorded by the server.
type SalesHistory interface {
	List(ctx context.Context) ([]remote.Sale, error)
}

// ErrOffline is returned by reads that only the server can answer.
var ErrOffline = errors.New("remote service is offline")

// LowStockAPI lists the server's low stock alerts.
type LowStockAPI interface {
	LowStock(ctx context.Context, threshold int) ([]offline.Product, error)
}

// DefaultLowStockThreshold is used when a caller gives no threshold.
const DefaultLowStockThreshold = 10

type Options struct {
	History  SalesHistory
	Alerts   LowStockAPI
	Workers  int
	PageSize int
}

// Service routes point-of-sale actions to the remote API while online and
// to the offline queues otherwise.
type Service struct {
	repo     *offline.Repository
	products sync.ProductsAPI
	sales    sync.SalesAPI
	history  SalesHistory
	alerts   LowStockAPI
	conn     Connectivity
	workers  int
	pageSize int
}

func NewService(repo *offline.Repository, apis sync.APIs, conn Connectivity, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	return &Service{
		repo:     repo,
		products: apis.Products,
		sales:    apis.Sales,
		history:  opts.History,
		alerts:   opts.Alerts,
		conn:     conn,
		workers:  opts.Workers,
		pageSize: opts.PageSize,
	}
}

// direct reports whether a write to product id may go straight to the
// server. Writes to a product with queued operations join the queue behind
// them so the server sees that product's changes in order.
func (s *Service) direct(id string) bool {
	return s.conn.Online() && !s.repo.HasQueuedOps(id)
}

// fallBack reports whether err from an online attempt should be absorbed
// by queueing the action.
func fallBack(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !remote.IsPermanent(err)
}

// CreateProduct returns the created product and whether it was queued.
// A queued product carries a temporary id.
func (s *Service) CreateProduct(ctx context.Context, fields offline.ProductFields) (offline.Product, bool, error) {
	if err := fields.Validate(); err != nil {
		return offline.Product{}, false, err
	}

	if s.conn.Online() {
		p, err := s.products.Create(ctx, fields)
		if err == nil {
			s.repo.UpsertCachedProduct(p)
			return p, false, nil
		}
		if !fallBack(ctx, err) {
			return offline.Product{}, false, err
		}
		logger.Log.Warn("Remote create failed, queueing", zap.String("sku", fields.SKU), zap.Error(err))
	}

	p, err := s.repo.EnqueueCreate(fields)
	return p, err == nil, err
}

// UpdateProduct reports whether the update was queued.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch offline.ProductPatch) (bool, error) {
	if err := patch.Validate(); err != nil {
		return false, err
	}

	if realID, ok := s.repo.ResolveReference(id, s.repo.IDMap()); ok && s.direct(id) {
		p, err := s.products.Update(ctx, realID, patch)
		if err == nil {
			if p.ID != "" {
				s.repo.UpsertCachedProduct(p)
			}
			return false, nil
		}
		if !fallBack(ctx, err) {
			return false, err
		}
		logger.Log.Warn("Remote update failed, queueing", zap.String("id", id), zap.Error(err))
	}

	return true, s.repo.EnqueueUpdate(id, patch)
}

// DeleteProduct reports whether the delete was queued.
func (s *Service) DeleteProduct(ctx context.Context, id string) (bool, error) {
	if realID, ok := s.repo.ResolveReference(id, s.repo.IDMap()); ok && s.direct(id) {
		err := s.products.Remove(ctx, realID)
		if err == nil {
			s.repo.RemoveCachedProduct(realID)
			if realID != id {
				s.repo.RemoveCachedProduct(id)
			}
			return false, nil
		}
		if !fallBack(ctx, err) {
			return false, err
		}
		logger.Log.Warn("Remote delete failed, queueing", zap.String("id", id), zap.Error(err))
	}

	s.repo.EnqueueDelete(id)
	return true, nil
}

// ListProducts returns the product list and whether it came from the
// local cache. Online, the server list is shown with the changes still
// queued laid over it, and an unfiltered list is merged into the cache.
func (s *Service) ListProducts(ctx context.Context, search string) ([]offline.Product, bool, error) {
	if s.conn.Online() {
		list, err := s.products.List(ctx, remote.ListParams{Page: 1, Limit: s.pageSize, Search: search})
		switch {
		case err == nil:
			merged := s.repo.OverlayPending(list.Items, search == "")
			return filterProducts(merged, search), false, nil
		case !fallBack(ctx, err):
			return nil, false, err
		default:
			logger.Log.Warn("Remote list failed, serving cache", zap.Error(err))
		}
	}
	return filterProducts(s.repo.CachedProducts(), search), true, nil
}

// LowStock returns the products at or below threshold and whether the
// answer came from the local cache.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]offline.Product, bool, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	if s.alerts != nil && s.conn.Online() {
		products, err := s.alerts.LowStock(ctx, threshold)
		if err == nil {
			return products, false, nil
		}
		if !fallBack(ctx, err) {
			return nil, false, err
		}
		logger.Log.Warn("Remote low stock alerts failed, serving cache", zap.Int("threshold", threshold), zap.Error(err))
	}

	low := make([]offline.Product, 0)
	for _, p := range s.repo.CachedProducts() {
		if p.Quantity <= threshold {
			low = append(low, p)
		}
	}
	return low, true, nil
}

func filterProducts(products []offline.Product, search string) []offline.Product {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return products
	}
	out := make([]offline.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), search) || strings.Contains(strings.ToLower(p.SKU), search) {
			out = append(out, p)
		}
	}
	return out
}

// Checkout prices the cart against the cached products and records it.
// Online, every line becomes a remote sale; if that stops part way the
// sale is queued with the accepted lines marked.
func (s *Service) Checkout(ctx context.Context, req offline.CheckoutRequest) (Receipt, error) {
	if !s.conn.Online() {
		sale, err := s.repo.RecordSale(req)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{Sale: sale, Offline: true}, nil
	}

	if err := s.repo.CheckCart(req); err != nil {
		return Receipt{}, err
	}
	sale, err := offline.BuildSale(req, s.repo.CachedProducts(), time.Now())
	if err != nil {
		return Receipt{}, err
	}

	productIDs, ok := s.repo.ResolveItems(sale.Items, s.repo.IDMap())
	if !ok {
		logger.Log.Info("Sale references unsynced products, queueing", zap.String("sale_id", sale.ID))
		s.repo.QueueSale(sale)
		return Receipt{Sale: sale, Offline: true}, nil
	}

	sent, err := sync.SubmitSale(ctx, s.sales, sale, productIDs, s.workers)
	if err == nil {
		s.repo.TakeStock(sent.Items)
		return Receipt{Sale: sent, Offline: false}, nil
	}

	accepted := len(sent.Items) - sent.Pending()
	if accepted == 0 && !fallBack(ctx, err) {
		return Receipt{}, err
	}
	logger.Log.Warn("Online checkout failed, queueing sale",
		zap.String("sale_id", sent.ID),
		zap.Int("lines_accepted", accepted),
		zap.Error(err))
	sent.Attempts++
	s.repo.QueueSale(sent)
	return Receipt{Sale: sent, Offline: true}, nil
}

// RecentSales returns the server's sales. Sales still queued locally are
// not included; Pending counts them.
func (s *Service) RecentSales(ctx context.Context) ([]remote.Sale, error) {
	if s.history == nil || !s.conn.Online() {
		return nil, ErrOffline
	}
	return s.history.List(ctx)
}

func (s *Service) Pending() offline.PendingCounts {
	return s.repo.Pending()
}

// IsValidation reports whether err is a rejected input rather than a
// failure to reach storage or the server.
func IsValidation(err error) bool {
	return errors.Is(err, offline.ErrInvalidProduct) ||
		errors.Is(err, offline.ErrInvalidSale) ||
		errors.Is(err, offline.ErrUnknownProduct) ||
		errors.Is(err, offline.ErrInsufficientStock)
}
