package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"kashflow-sync/internal/offline"
)

type ListParams struct {
	Page   int
	Limit  int
	Search string
}

type ProductList struct {
	Items []offline.Product
	Total int
}

// Products is the /products collection.
type Products struct {
	client *Client
}

func NewProducts(client *Client) *Products {
	return &Products{client: client}
}

func (p *Products) List(ctx context.Context, params ListParams) (ProductList, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Search != "" {
		q.Set("search", params.Search)
	}

	var items []offline.Product
	header, err := p.client.do(ctx, http.MethodGet, "/products", q, nil, &items)
	if err != nil {
		return ProductList{}, err
	}
	if items == nil {
		items = []offline.Product{}
	}
	total, _ := strconv.Atoi(header.Get("X-Total-Count"))
	return ProductList{Items: items, Total: total}, nil
}

func (p *Products) Create(ctx context.Context, fields offline.ProductFields) (offline.Product, error) {
	var out offline.Product
	_, err := p.client.do(ctx, http.MethodPost, "/products", nil, fields, &out)
	return out, err
}

func (p *Products) Update(ctx context.Context, id string, patch offline.ProductPatch) (offline.Product, error) {
	var out offline.Product
	_, err := p.client.do(ctx, http.MethodPut, "/products/"+url.PathEscape(id), nil, patch, &out)
	return out, err
}

func (p *Products) Remove(ctx context.Context, id string) error {
	_, err := p.client.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil, nil)
	return err
}
