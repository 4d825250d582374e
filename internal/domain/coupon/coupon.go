// Package coupon prices promotional codes against a cart. Pricing a code is
// a quote only: nothing is redeemed or counted, and the cart calculator
// never sees coupons.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind selects how a promotion reduces the merchandise subtotal. The values
// are the ones stored in the coupons table.
type Kind string

const (
	// PercentOff takes Value percent off the subtotal.
	PercentOff Kind = "percentage"
	// AmountOff takes Value in the base currency off the subtotal.
	AmountOff Kind = "fixed"
	// CheapestFree makes one unit of the cheapest garment free.
	CheapestFree Kind = "free_lowest"
)

var (
	// ErrUnknownCode means no active promotion carries the code.
	ErrUnknownCode = errors.New("unknown coupon code")
	// ErrNotEligible means the cart holds fewer garments than the promotion needs.
	ErrNotEligible = errors.New("cart does not qualify for coupon")
	// ErrNotActive means the promotion has not started or has ended.
	ErrNotActive = errors.New("coupon is not active")
)

// Promotion is a stored coupon.
type Promotion struct {
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	MinUnits    int
	Description string
	Starts      *time.Time
	Ends        *time.Time
}

// ActiveAt reports whether t falls between Starts and Ends. A nil bound is
// open.
func (p *Promotion) ActiveAt(t time.Time) bool {
	if p.Starts != nil && t.Before(*p.Starts) {
		return false
	}
	return p.Ends == nil || !t.After(*p.Ends)
}

// NormalizeCode trims and upper-cases a code as customers type it.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository stores promotions keyed by normalized code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	Upsert(ctx context.Context, p Promotion) error
}
