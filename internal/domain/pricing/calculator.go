// Package pricing computes cart subtotals and checkout summaries. All values
// are in the base currency; display conversion is the currency package's job.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-storefront/internal/domain/product"
)

var (
	// DefaultFallbackPrice is charged for a line whose product snapshot is
	// missing or carries an unparseable price.
	DefaultFallbackPrice = decimal.RequireFromString("25.00")
	// DefaultShippingThreshold is the subtotal above which shipping is free.
	DefaultShippingThreshold = decimal.RequireFromString("100.00")
	// DefaultShippingFee is the flat fee charged at or below the threshold.
	DefaultShippingFee = decimal.RequireFromString("9.99")
)

// Item is the pricing view of a cart line.
type Item struct {
	ProductID int64
	Quantity  int
	Product   *product.Snapshot
}

// ShippingRule charges FlatFee unless the subtotal exceeds Threshold.
type ShippingRule struct {
	Threshold decimal.Decimal
	FlatFee   decimal.Decimal
}

// Cost returns the shipping charged for subtotal.
func (r ShippingRule) Cost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(r.Threshold) {
		return decimal.Zero
	}
	return r.FlatFee
}

// Calculator is a pure function of its inputs. The zero value prices every
// line without a snapshot at zero; use DefaultCalculator or set the fields.
type Calculator struct {
	FallbackPrice decimal.Decimal
	Shipping      ShippingRule
}

// DefaultCalculator returns a Calculator with the package defaults.
func DefaultCalculator() Calculator {
	return Calculator{
		FallbackPrice: DefaultFallbackPrice,
		Shipping: ShippingRule{
			Threshold: DefaultShippingThreshold,
			FlatFee:   DefaultShippingFee,
		},
	}
}

// EffectivePrice returns the snapshot base price when it parses, otherwise
// the fallback price.
func (c Calculator) EffectivePrice(it Item) decimal.Decimal {
	if it.Product == nil {
		return c.FallbackPrice
	}
	p, err := decimal.NewFromString(it.Product.BasePrice)
	if err != nil {
		return c.FallbackPrice
	}
	return p
}

// LineSubtotal returns effective price times quantity, with quantity clamped to 1.
func (c Calculator) LineSubtotal(it Item) decimal.Decimal {
	qty := max(1, it.Quantity)
	return c.EffectivePrice(it).Mul(decimal.NewFromInt(int64(qty)))
}

// Subtotal folds all line subtotals.
func (c Calculator) Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(c.LineSubtotal(it))
	}
	return sum
}

// Summary is the checkout breakdown shown before payment.
type Summary struct {
	Items    int
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Quote computes the checkout summary. The shipping threshold is evaluated
// against the pre-discount subtotal. An empty cart ships for free.
func (c Calculator) Quote(items []Item, discount decimal.Decimal) Summary {
	subtotal := c.Subtotal(items)

	count := 0
	for _, it := range items {
		count += max(1, it.Quantity)
	}

	shipping := decimal.Zero
	if count > 0 {
		shipping = c.Shipping.Cost(subtotal)
	}

	discount = decimal.Min(floorAtZero(discount), subtotal)
	total := subtotal.Sub(discount).Add(shipping)

	return Summary{
		Items:    count,
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Shipping: shipping.Round(2),
		Total:    floorAtZero(total).Round(2),
	}
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
