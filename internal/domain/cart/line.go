package cart

import "github.com/xenking/apparel-storefront/internal/domain/product"

// OptString is an optional string attribute. The zero value is absent, which
// is distinct from a set empty string.
type OptString struct {
	Value string
	Set   bool
}

// NewOptString returns a set OptString holding v.
func NewOptString(v string) OptString {
	return OptString{Value: v, Set: true}
}

// Get returns the value and whether it was set.
func (o OptString) Get() (string, bool) {
	return o.Value, o.Set
}

// Line is one distinct purchasable configuration and its quantity.
type Line struct {
	ID             int
	ProductID      int64
	Quantity       int
	Size           OptString
	Color          OptString
	Customizations OptString
	// Product is the catalog snapshot taken when the line was created. May be nil.
	Product *product.Snapshot
}

// AddItem is the input of Store.Add. Quantity below 1 is treated as 1.
type AddItem struct {
	ProductID      int64
	Quantity       int
	Size           OptString
	Color          OptString
	Customizations OptString
	Product        *product.Snapshot
}

// key identifies a purchasable configuration. Two lines never share a key.
type key struct {
	productID      int64
	size           OptString
	color          OptString
	customizations OptString
}

func (l Line) key() key {
	return key{
		productID:      l.ProductID,
		size:           l.Size,
		color:          l.Color,
		customizations: l.Customizations,
	}
}

func (it AddItem) key() key {
	return key{
		productID:      it.ProductID,
		size:           it.Size,
		color:          it.Color,
		customizations: it.Customizations,
	}
}

// MaxQuantity is the largest quantity a single line can hold.
const MaxQuantity = 999

// normalizeQuantity clamps q to [1, MaxQuantity].
func normalizeQuantity(q int) int {
	return min(max(q, 1), MaxQuantity)
}
