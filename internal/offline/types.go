package offline

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

var (
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is one inventory record as the remote API returns it.
type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image_url,omitempty"`
}

// ProductFields is the payload of a product creation.
type ProductFields struct {
	SKU       string          `json:"sku" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required,max=255"`
	Price     decimal.Decimal `json:"price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	ImageURL  string          `json:"image_url,omitempty" validate:"omitempty,url"`
}

func (f ProductFields) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	if f.Price.IsNegative() || f.CostPrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidProduct)
	}
	return nil
}

func (f ProductFields) product(id string) Product {
	return Product{
		ID:        id,
		SKU:       f.SKU,
		Name:      f.Name,
		Price:     f.Price,
		CostPrice: f.CostPrice,
		Quantity:  f.Quantity,
		ImageURL:  f.ImageURL,
	}
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	SKU       *string          `json:"sku,omitempty"`
	Name      *string          `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	Quantity  *int             `json:"quantity,omitempty"`
	ImageURL  *string          `json:"image_url,omitempty"`
}

func (p ProductPatch) Validate() error {
	switch {
	case p.SKU != nil && *p.SKU == "":
		return fmt.Errorf("%w: sku must not be empty", ErrInvalidProduct)
	case p.Name != nil && *p.Name == "":
		return fmt.Errorf("%w: name must not be empty", ErrInvalidProduct)
	case p.Price != nil && p.Price.IsNegative(), p.CostPrice != nil && p.CostPrice.IsNegative():
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidProduct)
	case p.Quantity != nil && *p.Quantity < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidProduct)
	}
	return nil
}

// Merge folds later over p; fields set in later win.
func (p ProductPatch) Merge(later ProductPatch) ProductPatch {
	if later.SKU != nil {
		p.SKU = later.SKU
	}
	if later.Name != nil {
		p.Name = later.Name
	}
	if later.Price != nil {
		p.Price = later.Price
	}
	if later.CostPrice != nil {
		p.CostPrice = later.CostPrice
	}
	if later.Quantity != nil {
		p.Quantity = later.Quantity
	}
	if later.ImageURL != nil {
		p.ImageURL = later.ImageURL
	}
	return p
}

func (p ProductPatch) Apply(prod Product) Product {
	if p.SKU != nil {
		prod.SKU = *p.SKU
	}
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.CostPrice != nil {
		prod.CostPrice = *p.CostPrice
	}
	if p.Quantity != nil {
		prod.Quantity = *p.Quantity
	}
	if p.ImageURL != nil {
		prod.ImageURL = *p.ImageURL
	}
	return prod
}

// ApplyFields folds p into a not yet synced creation payload.
func (p ProductPatch) ApplyFields(f ProductFields) ProductFields {
	prod := p.Apply(f.product(""))
	return ProductFields{
		SKU:       prod.SKU,
		Name:      prod.Name,
		Price:     prod.Price,
		CostPrice: prod.CostPrice,
		Quantity:  prod.Quantity,
		ImageURL:  prod.ImageURL,
	}
}

// PatchFromFields turns a full creation payload into an equivalent patch.
func PatchFromFields(f ProductFields) ProductPatch {
	p := ProductPatch{
		SKU:       &f.SKU,
		Name:      &f.Name,
		Price:     &f.Price,
		CostPrice: &f.CostPrice,
		Quantity:  &f.Quantity,
	}
	if f.ImageURL != "" {
		p.ImageURL = &f.ImageURL
	}
	return p
}

type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// ProductOperation is an inventory mutation recorded while offline.
// Create carries TempID and Fields, Update carries TargetID and Patch,
// Delete carries TargetID. DependsOn names the temporary id an Update or
// Delete waits for.
type ProductOperation struct {
	ID        string         `json:"op_id"`
	Type      OpType         `json:"type"`
	TempID    string         `json:"tempId,omitempty"`
	TargetID  string         `json:"id,omitempty"`
	DependsOn string         `json:"depends_on,omitempty"`
	Fields    *ProductFields `json:"data,omitempty"`
	Patch     *ProductPatch  `json:"patch,omitempty"`
	Attempts  int            `json:"attempts,omitempty"`
	Revision  int            `json:"revision,omitempty"`
	QueuedAt  time.Time      `json:"queued_at"`
}

func NewCreateOp(tempID string, fields ProductFields, at time.Time) ProductOperation {
	return ProductOperation{
		ID:       uuid.NewString(),
		Type:     OpCreate,
		TempID:   tempID,
		Fields:   &fields,
		QueuedAt: at,
	}
}

func NewUpdateOp(id string, patch ProductPatch, dependsOn string, at time.Time) ProductOperation {
	return ProductOperation{
		ID:        uuid.NewString(),
		Type:      OpUpdate,
		TargetID:  id,
		DependsOn: dependsOn,
		Patch:     &patch,
		QueuedAt:  at,
	}
}

func NewDeleteOp(id string, dependsOn string, at time.Time) ProductOperation {
	return ProductOperation{
		ID:        uuid.NewString(),
		Type:      OpDelete,
		TargetID:  id,
		DependsOn: dependsOn,
		QueuedAt:  at,
	}
}

// Ref is the product identifier the operation is about.
func (op ProductOperation) Ref() string {
	if op.Type == OpCreate {
		return op.TempID
	}
	return op.TargetID
}

func (op ProductOperation) String() string {
	return fmt.Sprintf("%s %s (%s)", op.Type, op.Ref(), op.ID)
}

// IDMap translates temporary product ids to server-assigned ones.
type IDMap map[string]string

// Merge adds the entries of other. Existing entries are never replaced.
func (m IDMap) Merge(other IDMap) IDMap {
	out := make(IDMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// SaleItem is one line of a sale. RemoteSaleID is set once the line has
// been accepted by the remote API.
type SaleItem struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name,omitempty"`
	UnitPrice    decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	RemoteSaleID string          `json:"remote_sale_id,omitempty"`
}

// OfflineSale is a completed checkout captured while disconnected.
type OfflineSale struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Tendered      decimal.Decimal `json:"payment_amount"`
	Change        decimal.Decimal `json:"change"`
	Total         decimal.Decimal `json:"total"`
	Items         []SaleItem      `json:"items"`
	Attempts      int             `json:"attempts,omitempty"`
}

// Pending counts the lines that still need a remote sale.
func (s OfflineSale) Pending() int {
	n := 0
	for _, it := range s.Items {
		if it.RemoteSaleID == "" {
			n++
		}
	}
	return n
}
