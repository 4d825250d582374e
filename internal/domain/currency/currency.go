// Package currency converts and formats base-currency amounts for display.
//
// Rates are static configuration and only approximate real exchange rates.
// Stored prices always stay in the base currency.
package currency

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Code is an ISO 4217 currency code.
type Code string

// Base is the currency all prices are stored in.
const Base Code = "USD"

// ErrUnsupportedCurrency is returned when selecting a code outside the rate table.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Currency describes a display currency.
type Currency struct {
	Code   Code
	Symbol string
	Name   string
	// Rate converts one unit of the base currency into this currency.
	Rate decimal.Decimal
}

var table = []Currency{
	{Code: "USD", Symbol: "$", Name: "US Dollar", Rate: decimal.NewFromInt(1)},
	{Code: "EUR", Symbol: "€", Name: "Euro", Rate: decimal.RequireFromString("0.92")},
	{Code: "GBP", Symbol: "£", Name: "British Pound", Rate: decimal.RequireFromString("0.79")},
	{Code: "CAD", Symbol: "CA$", Name: "Canadian Dollar", Rate: decimal.RequireFromString("1.36")},
	{Code: "AUD", Symbol: "A$", Name: "Australian Dollar", Rate: decimal.RequireFromString("1.52")},
	{Code: "MXN", Symbol: "MX$", Name: "Mexican Peso", Rate: decimal.RequireFromString("17.10")},
}

var byCode = func() map[Code]Currency {
	m := make(map[Code]Currency, len(table))
	for _, c := range table {
		m[c.Code] = c
	}
	return m
}()

// Supported returns the rate table in display order.
func Supported() []Currency {
	return append([]Currency(nil), table...)
}

// Lookup returns the currency for code.
func Lookup(code Code) (Currency, bool) {
	c, ok := byCode[code]
	return c, ok
}

// Convert returns amount expressed in c.
func (c Currency) Convert(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.Rate)
}

// Format returns the converted amount prefixed with the symbol, to 2 decimal places.
func (c Currency) Format(amount decimal.Decimal) string {
	return c.Symbol + c.Convert(amount).StringFixed(2)
}
