package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"kashflow-sync/internal/offline"
)

// Alerts is the /alerts collection.
type Alerts struct {
	client *Client
}

func NewAlerts(client *Client) *Alerts {
	return &Alerts{client: client}
}

// LowStock lists the products whose quantity is at or below threshold.
func (a *Alerts) LowStock(ctx context.Context, threshold int) ([]offline.Product, error) {
	q := url.Values{}
	q.Set("threshold", strconv.Itoa(threshold))

	var items []offline.Product
	if _, err := a.client.do(ctx, http.MethodGet, "/alerts/low-stock", q, nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []offline.Product{}
	}
	return items, nil
}
