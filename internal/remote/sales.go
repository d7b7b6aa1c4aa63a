package remote

import (
	"context"
	"net/http"
	"time"
)

// SaleRequest records the sale of one product line.
type SaleRequest struct {
	ProductID    string `json:"product_id"`
	QuantitySold int    `json:"quantity_sold"`
}

type Sale struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	QuantitySold int       `json:"quantity_sold"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sales is the /sales collection.
type Sales struct {
	client *Client
}

func NewSales(client *Client) *Sales {
	return &Sales{client: client}
}

func (s *Sales) Create(ctx context.Context, req SaleRequest) (Sale, error) {
	var out Sale
	_, err := s.client.do(ctx, http.MethodPost, "/sales", nil, req, &out)
	return out, err
}

func (s *Sales) List(ctx context.Context) ([]Sale, error) {
	var out []Sale
	_, err := s.client.do(ctx, http.MethodGet, "/sales", nil, nil, &out)
	return out, err
}
