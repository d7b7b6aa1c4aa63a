package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kashflow-sync/internal/config"
	"kashflow-sync/internal/offline"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.RemoteConfig{BaseURL: srv.URL + "/", AuthToken: "tok", Timeout: "2s"})
}

func TestProductsListReadsTotalHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("X-Total-Count", "42")
		w.Write([]byte(`[{"id":"p1","sku":"A","name":"Apple","price":1.5,"cost_price":1,"quantity":3}]`))
	})

	list, err := NewProducts(client).List(context.Background(), ListParams{Page: 2, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, 42, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "p1", list.Items[0].ID)
	assert.True(t, list.Items[0].Price.Equal(decimal.RequireFromString("1.5")))
}

func TestProductsCreateSendsFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "A", got["sku"])
		assert.Equal(t, 2.5, got["price"])
		assert.Equal(t, 1.25, got["cost_price"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"srv-1","sku":"A","name":"Apple","price":"2","quantity":1}`))
	})

	p, err := NewProducts(client).Create(context.Background(), offline.ProductFields{
		SKU:       "A",
		Name:      "Apple",
		Price:     decimal.RequireFromString("2.5"),
		CostPrice: decimal.RequireFromString("1.25"),
		Quantity:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", p.ID)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(2)))
}

func TestProductsUpdateSendsNumericPrice(t *testing.T) {
	bodies := make(chan []byte, 1)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.Write([]byte(`{"id":"srv-1"}`))
	})
	price := decimal.RequireFromString("19.99")

	_, err := NewProducts(client).Update(context.Background(), "srv-1", offline.ProductPatch{Price: &price})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":19.99}`, string(<-bodies))
}

func TestAlertsLowStock(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/low-stock", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("threshold"))
		w.Write([]byte(`[{"id":"p4","sku":"S","name":"Salt","price":0.5,"quantity":2}]`))
	})

	low, err := NewAlerts(client).LowStock(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "p4", low[0].ID)
	assert.Equal(t, 2, low[0].Quantity)
}

func TestProductsUpdateAndRemovePaths(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`{"id":"srv-1"}`))
	})
	products := NewProducts(client)
	name := "New"

	_, err := products.Update(context.Background(), "srv-1", offline.ProductPatch{Name: &name})
	require.NoError(t, err)
	require.NoError(t, products.Remove(context.Background(), "srv-1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PUT /products/srv-1", "DELETE /products/srv-1"}, seen)
}

func TestSalesCreate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req SaleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SaleRequest{ProductID: "p1", QuantitySold: 2}, req)
		w.Write([]byte(`{"id":"sale-1","product_id":"p1","quantity_sold":2}`))
	})

	sale, err := NewSales(client).Create(context.Background(), SaleRequest{ProductID: "p1", QuantitySold: 2})
	require.NoError(t, err)
	assert.Equal(t, "sale-1", sale.ID)
}

func TestStatusErrorClassification(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"nope"}`, int(status.Load()))
	})
	products := NewProducts(client)

	err := products.Remove(context.Background(), "x")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.False(t, IsPermanent(err))

	status.Store(http.StatusNotFound)
	err = products.Remove(context.Background(), "x")
	assert.True(t, IsPermanent(err))

	status.Store(http.StatusTooManyRequests)
	err = products.Remove(context.Background(), "x")
	assert.False(t, IsPermanent(err))

	assert.False(t, IsPermanent(errors.New("connection refused")))
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
		}
	})

	assert.NoError(t, client.Ping(context.Background(), "/health"))
	assert.Error(t, client.Ping(context.Background(), "/missing"))
}
