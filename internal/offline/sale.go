package offline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"price"`
}

type CheckoutRequest struct {
	Items         []CartItem      `json:"items" validate:"required,min=1,dive"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"required,oneof=cash card"`
	Tendered      decimal.Decimal `json:"payment_amount"`
}

// BuildSale prices a checkout against the known products and computes the
// total and change. A cart line for a product not in products must carry
// its own unit price.
func BuildSale(req CheckoutRequest, products []Product, now time.Time) (OfflineSale, error) {
	if err := validate.Struct(req); err != nil {
		return OfflineSale{}, fmt.Errorf("%w: %v", ErrInvalidSale, err)
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	// Quantities are checked per product, so split lines for the same product add up.
	wanted := make(map[string]int, len(req.Items))
	for _, it := range req.Items {
		wanted[it.ProductID] += it.Quantity
	}

	sale := OfflineSale{
		ID:            uuid.NewString(),
		CreatedAt:     now.UTC(),
		PaymentMethod: req.PaymentMethod,
		Total:         decimal.Zero,
		Change:        decimal.Zero,
		Items:         make([]SaleItem, 0, len(req.Items)),
	}

	for _, it := range req.Items {
		price := it.UnitPrice
		name := ""
		if p, ok := byID[it.ProductID]; ok {
			if wanted[it.ProductID] > p.Quantity {
				return OfflineSale{}, fmt.Errorf("%w: only %d of %s in stock", ErrInsufficientStock, p.Quantity, p.Name)
			}
			price = p.Price
			name = p.Name
		} else if price.IsZero() {
			return OfflineSale{}, fmt.Errorf("%w: %s", ErrUnknownProduct, it.ProductID)
		}
		if price.IsNegative() {
			return OfflineSale{}, fmt.Errorf("%w: negative price for %s", ErrInvalidSale, it.ProductID)
		}

		subtotal := price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		sale.Items = append(sale.Items, SaleItem{
			ProductID: it.ProductID,
			Name:      name,
			UnitPrice: price,
			Quantity:  it.Quantity,
			Subtotal:  subtotal,
		})
		sale.Total = sale.Total.Add(subtotal)
	}

	switch req.PaymentMethod {
	case PaymentCash:
		if req.Tendered.LessThan(sale.Total) {
			return OfflineSale{}, fmt.Errorf("%w: payment amount %s is less than total %s",
				ErrInvalidSale, req.Tendered.StringFixed(2), sale.Total.StringFixed(2))
		}
		sale.Tendered = req.Tendered
		sale.Change = req.Tendered.Sub(sale.Total)
	case PaymentCard:
		sale.Tendered = sale.Total
	}

	return sale, nil
}
