package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          int64
	Name        string
	Description string
	Category    int64
	Price       decimal.Decimal
	// ComparePrice is the pre-sale price. Zero when the product is not on sale.
	ComparePrice decimal.Decimal
	Image        Image
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Discounted reports whether the product is currently sold below its compare price.
func (p Product) Discounted() bool {
	return p.ComparePrice.IsPositive() && p.ComparePrice.GreaterThan(p.Price)
}

// Snapshot returns the denormalized view attached to cart lines.
func (p Product) Snapshot() *Snapshot {
	return &Snapshot{
		Name:      p.Name,
		BasePrice: p.Price.StringFixed(2),
		Image:     p.Image.Thumbnail,
	}
}

// Snapshot is the display and pricing data a cart line carries for its product.
// BasePrice is a decimal string in the base currency, as delivered by the catalog.
type Snapshot struct {
	Name      string
	BasePrice string
	Image     string
}

// Repository defines operations on the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Upsert(ctx context.Context, p Product) error
}
