package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-storefront/internal/domain/pricing"
)

// Line is a cart line priced for promotions.
type Line struct {
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the reduction a code grants, in the base currency.
type Quote struct {
	Code        string
	Description string
	Amount      decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Price computes the reduction p grants for lines. The amount is rounded to
// cents and lies between zero and the subtotal.
func (p *Promotion) Price(lines []Line) (Quote, error) {
	if p.MinUnits > 0 && units(lines) < p.MinUnits {
		return Quote{}, ErrNotEligible
	}
	subtotal := Subtotal(lines)

	var off decimal.Decimal
	switch p.Kind {
	case PercentOff:
		off = subtotal.Mul(p.Value).Div(hundred)
	case AmountOff:
		off = p.Value
	case CheapestFree:
		off = cheapestUnit(lines)
	default:
		return Quote{}, errors.Errorf("unsupported coupon kind %q", p.Kind)
	}
	off = decimal.Min(decimal.Max(off, decimal.Zero), subtotal)

	return Quote{Code: p.Code, Description: p.Description, Amount: off.Round(2)}, nil
}

// LinesFrom prices cart items with calc so promotions see the same unit
// prices as the cart total.
func LinesFrom(calc pricing.Calculator, items []pricing.Item) []Line {
	lines := make([]Line, len(items))
	for i, it := range items {
		lines[i] = Line{
			ProductID: it.ProductID,
			UnitPrice: calc.EffectivePrice(it),
			Quantity:  max(1, it.Quantity),
		}
	}
	return lines
}

// Subtotal sums unit price times quantity.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

func units(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// cheapestUnit is the lowest unit price among lines holding at least one
// garment, or zero for an empty cart.
func cheapestUnit(lines []Line) decimal.Decimal {
	var low *decimal.Decimal
	for i := range lines {
		if lines[i].Quantity <= 0 {
			continue
		}
		if low == nil || lines[i].UnitPrice.LessThan(*low) {
			low = &lines[i].UnitPrice
		}
	}
	if low == nil {
		return decimal.Zero
	}
	return *low
}
