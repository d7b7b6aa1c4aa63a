package pos

import (
	"context"
	"fmt"
	"net/http"
	gosync "sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kashflow-sync/internal/localstore"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/remote"
	"kashflow-sync/internal/sync"
)

type stubProducts struct {
	mu      gosync.Mutex
	calls   []string
	list    []offline.Product
	failErr error
	failOn  map[string]error
}

func (s *stubProducts) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if err := s.failOn[call]; err != nil {
		return err
	}
	return s.failErr
}

func (s *stubProducts) Create(_ context.Context, f offline.ProductFields) (offline.Product, error) {
	if err := s.record("create " + f.SKU); err != nil {
		return offline.Product{}, err
	}
	return offline.Product{ID: "srv-" + f.SKU, SKU: f.SKU, Name: f.Name, Price: f.Price, Quantity: f.Quantity}, nil
}

func (s *stubProducts) Update(_ context.Context, id string, patch offline.ProductPatch) (offline.Product, error) {
	if err := s.record("update " + id); err != nil {
		return offline.Product{}, err
	}
	return patch.Apply(offline.Product{ID: id}), nil
}

func (s *stubProducts) Remove(_ context.Context, id string) error {
	return s.record("delete " + id)
}

func (s *stubProducts) List(_ context.Context, params remote.ListParams) (remote.ProductList, error) {
	if err := s.record("list " + params.Search); err != nil {
		return remote.ProductList{}, err
	}
	return remote.ProductList{Items: s.list, Total: len(s.list)}, nil
}

func (s *stubProducts) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubSales struct {
	mu    gosync.Mutex
	calls []remote.SaleRequest
	fail  map[string]error
}

func (s *stubSales) Create(_ context.Context, req remote.SaleRequest) (remote.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if err := s.fail[req.ProductID]; err != nil {
		return remote.Sale{}, err
	}
	return remote.Sale{ID: fmt.Sprintf("sale-%d", len(s.calls)), ProductID: req.ProductID, QuantitySold: req.QuantitySold}, nil
}

func (s *stubSales) List(context.Context) ([]remote.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Sale, 0, len(s.calls))
	for i, c := range s.calls {
		out = append(out, remote.Sale{ID: fmt.Sprintf("sale-%d", i+1), ProductID: c.ProductID, QuantitySold: c.QuantitySold})
	}
	return out, nil
}

func (s *stubSales) Calls() []remote.SaleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.SaleRequest(nil), s.calls...)
}

type stubAlerts struct {
	mu        gosync.Mutex
	products  []offline.Product
	err       error
	threshold int
}

func (s *stubAlerts) LowStock(_ context.Context, threshold int) ([]offline.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	return s.products, s.err
}

type fixture struct {
	svc      *Service
	repo     *offline.Repository
	products *stubProducts
	sales    *stubSales
	alerts   *stubAlerts
	signal   *sync.Signal
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	repo := offline.NewRepository(localstore.New(localstore.NewMemoryBackend()), "temp-")
	repo.SetCachedProducts([]offline.Product{
		{ID: "p1", SKU: "A1", Name: "Apple", Price: decimal.RequireFromString("1.5"), Quantity: 10},
		{ID: "p2", SKU: "B2", Name: "Bread", Price: decimal.RequireFromString("3"), Quantity: 2},
	})
	f := &fixture{
		repo:     repo,
		products: &stubProducts{failOn: map[string]error{}},
		sales:    &stubSales{fail: map[string]error{}},
		alerts:   &stubAlerts{},
		signal:   sync.NewSignal(online),
	}
	f.svc = NewService(repo, sync.APIs{Products: f.products, Sales: f.sales}, f.signal, Options{
		History: f.sales,
		Alerts:  f.alerts,
		Workers: 2,
	})
	return f
}

func newFields(sku string) offline.ProductFields {
	return offline.ProductFields{SKU: sku, Name: "Item " + sku, Price: decimal.RequireFromString("2.5"), Quantity: 4}
}

func cartOf(items ...offline.CartItem) offline.CheckoutRequest {
	return offline.CheckoutRequest{Items: items, PaymentMethod: offline.PaymentCard}
}

func strPtr(s string) *string { return &s }

func TestCreateProductOfflineQueues(t *testing.T) {
	f := newFixture(t, false)

	p, queued, err := f.svc.CreateProduct(context.Background(), newFields("C3"))
	require.NoError(t, err)

	assert.True(t, queued)
	assert.True(t, f.repo.IsTempID(p.ID))
	assert.Empty(t, f.products.Calls())
	assert.Equal(t, offline.PendingCounts{ProductOps: 1}, f.svc.Pending())
}

func TestCreateProductOnlineGoesRemote(t *testing.T) {
	f := newFixture(t, true)

	p, queued, err := f.svc.CreateProduct(context.Background(), newFields("C3"))
	require.NoError(t, err)

	assert.False(t, queued)
	assert.Equal(t, "srv-C3", p.ID)
	assert.Equal(t, "srv-C3", f.repo.CachedProducts()[0].ID)
	assert.Empty(t, f.repo.ProductOps())
}

func TestCreateProductFallsBackOnTransientFailure(t *testing.T) {
	f := newFixture(t, true)
	f.products.failErr = &remote.StatusError{StatusCode: http.StatusServiceUnavailable}

	p, queued, err := f.svc.CreateProduct(context.Background(), newFields("C3"))
	require.NoError(t, err)
	assert.True(t, queued)
	assert.True(t, f.repo.IsTempID(p.ID))
	assert.Len(t, f.repo.ProductOps(), 1)
}

func TestCreateProductSurfacesPermanentFailure(t *testing.T) {
	f := newFixture(t, true)
	f.products.failErr = &remote.StatusError{StatusCode: http.StatusConflict}

	_, _, err := f.svc.CreateProduct(context.Background(), newFields("C3"))
	require.Error(t, err)
	assert.Empty(t, f.repo.ProductOps())
}

func TestCreateProductRejectsInvalidFields(t *testing.T) {
	f := newFixture(t, true)

	_, _, err := f.svc.CreateProduct(context.Background(), offline.ProductFields{Name: "no sku"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, f.products.Calls())
}

func TestUpdateProductQueuesBehindOwnOperations(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.repo.EnqueueUpdate("p1", offline.ProductPatch{SKU: strPtr("A1-X")}))

	queued, err := f.svc.UpdateProduct(context.Background(), "p1", offline.ProductPatch{Name: strPtr("Green apple")})
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Empty(t, f.products.Calls())
	assert.Equal(t, "Green apple", f.repo.CachedProducts()[0].Name)

	// Another product has nothing queued and goes straight to the server.
	queued, err = f.svc.UpdateProduct(context.Background(), "p2", offline.ProductPatch{Name: strPtr("Rye")})
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, []string{"update p2"}, f.products.Calls())
	assert.Len(t, f.repo.ProductOps(), 1)
}

func TestStuckOperationDoesNotKeepTillOffline(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.repo.EnqueueUpdate("p1", offline.ProductPatch{Name: strPtr("Green apple")}))
	f.products.failOn["update p1"] = &remote.StatusError{StatusCode: http.StatusNotFound}

	engine := sync.NewEngine(f.repo, sync.EngineOptions{})
	apis := sync.APIs{Products: f.products, Sales: f.sales}
	for range 3 {
		summary, err := engine.SyncAll(context.Background(), apis)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.RemainingOps)
	}

	f.products.list = []offline.Product{{ID: "p9", SKU: "C9", Name: "Cheese", Quantity: 3}}
	list, cached, err := f.svc.ListProducts(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, list, 1)
	assert.Equal(t, "p9", list[0].ID)
	cache := f.repo.CachedProducts()
	require.Len(t, cache, 1)
	assert.Equal(t, "p9", cache[0].ID)

	p, queued, err := f.svc.CreateProduct(context.Background(), newFields("D4"))
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, "srv-D4", p.ID)
}

func TestUpdateProductOnlineResolvesSyncedTempID(t *testing.T) {
	f := newFixture(t, true)
	f.repo.SetIDMap(offline.IDMap{"temp-9": "p1"})

	queued, err := f.svc.UpdateProduct(context.Background(), "temp-9", offline.ProductPatch{Name: strPtr("Green apple")})
	require.NoError(t, err)

	assert.False(t, queued)
	assert.Equal(t, []string{"update p1"}, f.products.Calls())
}

func TestDeleteProductOnlineRemovesFromCache(t *testing.T) {
	f := newFixture(t, true)

	queued, err := f.svc.DeleteProduct(context.Background(), "p2")
	require.NoError(t, err)

	assert.False(t, queued)
	assert.Equal(t, []string{"delete p2"}, f.products.Calls())
	cache := f.repo.CachedProducts()
	require.Len(t, cache, 1)
	assert.Equal(t, "p1", cache[0].ID)
}

func TestListProductsOnlineReplacesCache(t *testing.T) {
	f := newFixture(t, true)
	f.products.list = []offline.Product{{ID: "p9", Name: "Fresh"}}

	list, cached, err := f.svc.ListProducts(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, cached)
	assert.Equal(t, f.products.list, list)
	cache := f.repo.CachedProducts()
	require.Len(t, cache, 1)
	assert.Equal(t, "p9", cache[0].ID)
}

func TestListProductsOnlineOverlaysQueuedChanges(t *testing.T) {
	f := newFixture(t, false)
	created, _, err := f.svc.CreateProduct(context.Background(), newFields("C3"))
	require.NoError(t, err)
	_, err = f.svc.UpdateProduct(context.Background(), "p1", offline.ProductPatch{Name: strPtr("Green apple")})
	require.NoError(t, err)
	_, err = f.svc.DeleteProduct(context.Background(), "p2")
	require.NoError(t, err)

	f.signal.Set(true)
	f.products.list = []offline.Product{
		{ID: "p1", SKU: "A1", Name: "Apple", Quantity: 10},
		{ID: "p2", SKU: "B2", Name: "Bread", Quantity: 2},
		{ID: "p9", SKU: "C9", Name: "Cheese", Quantity: 3},
	}
	list, cached, err := f.svc.ListProducts(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, cached)
	require.Len(t, list, 3)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, "Green apple", list[1].Name)
	assert.Equal(t, "p9", list[2].ID)
	assert.Len(t, f.repo.CachedProducts(), 3)
	assert.Len(t, f.repo.ProductOps(), 3)
}

func TestListProductsOnlineSearchLeavesCache(t *testing.T) {
	f := newFixture(t, true)
	f.products.list = []offline.Product{{ID: "p9", Name: "Cheese"}}

	list, cached, err := f.svc.ListProducts(context.Background(), "che")
	require.NoError(t, err)

	assert.False(t, cached)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"list che"}, f.products.Calls())
	assert.Len(t, f.repo.CachedProducts(), 2)
}

func TestListProductsOfflineFiltersCache(t *testing.T) {
	f := newFixture(t, false)

	list, cached, err := f.svc.ListProducts(context.Background(), "brE")
	require.NoError(t, err)

	assert.True(t, cached)
	require.Len(t, list, 1)
	assert.Equal(t, "p2", list[0].ID)
	assert.Empty(t, f.products.Calls())
}

func TestCheckoutOfflineQueuesSale(t *testing.T) {
	f := newFixture(t, false)

	receipt, err := f.svc.Checkout(context.Background(), cartOf(offline.CartItem{ProductID: "p1", Quantity: 3}))
	require.NoError(t, err)

	assert.True(t, receipt.Offline)
	assert.Equal(t, "4.5", receipt.Sale.Total.String())
	assert.Len(t, f.repo.OfflineSales(), 1)
	assert.Equal(t, 7, f.repo.CachedProducts()[0].Quantity)
	assert.Empty(t, f.sales.Calls())
}

func TestCheckoutOnlineSubmitsEveryLine(t *testing.T) {
	f := newFixture(t, true)

	receipt, err := f.svc.Checkout(context.Background(), cartOf(
		offline.CartItem{ProductID: "p1", Quantity: 1},
		offline.CartItem{ProductID: "p2", Quantity: 2},
	))
	require.NoError(t, err)

	assert.False(t, receipt.Offline)
	assert.Equal(t, 0, receipt.Sale.Pending())
	assert.Len(t, f.sales.Calls(), 2)
	assert.Empty(t, f.repo.OfflineSales())
	assert.Equal(t, 0, f.repo.CachedProducts()[1].Quantity)
}

func TestCheckoutOnlinePartialFailureQueuesRemainder(t *testing.T) {
	f := newFixture(t, true)
	f.sales.fail["p2"] = &remote.StatusError{StatusCode: http.StatusBadGateway}

	receipt, err := f.svc.Checkout(context.Background(), cartOf(
		offline.CartItem{ProductID: "p1", Quantity: 1},
		offline.CartItem{ProductID: "p2", Quantity: 1},
	))
	require.NoError(t, err)

	assert.True(t, receipt.Offline)
	queued := f.repo.OfflineSales()
	require.Len(t, queued, 1)
	assert.NotEmpty(t, queued[0].Items[0].RemoteSaleID)
	assert.Empty(t, queued[0].Items[1].RemoteSaleID)
	assert.Equal(t, 1, queued[0].Attempts)
}

func TestCheckoutWithUnsyncedProductQueues(t *testing.T) {
	f := newFixture(t, true)
	f.repo.UpsertCachedProduct(offline.Product{ID: "temp-1", Name: "New", Price: decimal.RequireFromString("2"), Quantity: 5})

	receipt, err := f.svc.Checkout(context.Background(), cartOf(offline.CartItem{ProductID: "temp-1", Quantity: 1}))
	require.NoError(t, err)

	assert.True(t, receipt.Offline)
	assert.Empty(t, f.sales.Calls())
	assert.Len(t, f.repo.OfflineSales(), 1)
}

func TestCheckoutRefusesRejectedProduct(t *testing.T) {
	f := newFixture(t, false)
	created, _, err := f.svc.CreateProduct(context.Background(), newFields("C3"))
	require.NoError(t, err)
	f.repo.MarkRejected(created.ID)

	cart := cartOf(offline.CartItem{ProductID: created.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("2.5")})
	_, err = f.svc.Checkout(context.Background(), cart)
	assert.ErrorIs(t, err, offline.ErrUnknownProduct)

	f.signal.Set(true)
	_, err = f.svc.Checkout(context.Background(), cart)
	assert.ErrorIs(t, err, offline.ErrUnknownProduct)
	assert.Empty(t, f.repo.OfflineSales())
	assert.Empty(t, f.sales.Calls())
}

func TestCheckoutSurfacesPermanentRejection(t *testing.T) {
	f := newFixture(t, true)
	f.sales.fail["p1"] = &remote.StatusError{StatusCode: http.StatusUnprocessableEntity}

	_, err := f.svc.Checkout(context.Background(), cartOf(offline.CartItem{ProductID: "p1", Quantity: 1}))
	require.Error(t, err)
	assert.Empty(t, f.repo.OfflineSales())
}

func TestCheckoutValidatesCart(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Checkout(context.Background(), cartOf(offline.CartItem{ProductID: "p2", Quantity: 5}))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, f.sales.Calls())
}

func TestRecentSalesNeedsConnectivity(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.RecentSales(context.Background())
	assert.ErrorIs(t, err, ErrOffline)

	f.signal.Set(true)
	_, err = f.svc.Checkout(context.Background(), cartOf(offline.CartItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	sales, err := f.svc.RecentSales(context.Background())
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "p1", sales[0].ProductID)
}

func TestLowStockOnlineAsksServer(t *testing.T) {
	f := newFixture(t, true)
	f.alerts.products = []offline.Product{{ID: "p7", Name: "Salt", Quantity: 1}}

	list, cached, err := f.svc.LowStock(context.Background(), 5)
	require.NoError(t, err)

	assert.False(t, cached)
	assert.Equal(t, f.alerts.products, list)
	assert.Equal(t, 5, f.alerts.threshold)
}

func TestLowStockDefaultsThreshold(t *testing.T) {
	f := newFixture(t, true)

	_, _, err := f.svc.LowStock(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLowStockThreshold, f.alerts.threshold)
}

func TestLowStockOfflineFiltersCache(t *testing.T) {
	f := newFixture(t, false)

	list, cached, err := f.svc.LowStock(context.Background(), 2)
	require.NoError(t, err)

	assert.True(t, cached)
	require.Len(t, list, 1)
	assert.Equal(t, "p2", list[0].ID)
	assert.Zero(t, f.alerts.threshold)

	list, _, err = f.svc.LowStock(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestLowStockFallsBackOnTransientFailure(t *testing.T) {
	f := newFixture(t, true)
	f.alerts.err = &remote.StatusError{StatusCode: http.StatusBadGateway}

	list, cached, err := f.svc.LowStock(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, cached)
	require.Len(t, list, 1)
	assert.Equal(t, "p2", list[0].ID)
}

func TestLowStockSurfacesPermanentFailure(t *testing.T) {
	f := newFixture(t, true)
	f.alerts.err = &remote.StatusError{StatusCode: http.StatusForbidden}

	_, _, err := f.svc.LowStock(context.Background(), 3)
	require.Error(t, err)
}
