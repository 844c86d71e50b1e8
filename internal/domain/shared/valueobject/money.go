package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	USD Currency = "USD" // US Dollar (default)
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	CAD Currency = "CAD" // Canadian Dollar
	AUD Currency = "AUD" // Australian Dollar
	JPY Currency = "JPY" // Japanese Yen
	CNY Currency = "CNY" // Chinese Yuan
	INR Currency = "INR" // Indian Rupee
)

// DefaultCurrency is assumed when an invoice carries no currency code
const DefaultCurrency = USD

// NormalizeCurrency trims and upper-cases a raw currency code.
// The result is not checked against ISO 4217; use IsKnown for that.
func NormalizeCurrency(raw string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsKnown reports whether the code is a recognized ISO 4217 currency
func (c Currency) IsKnown() bool {
	if len(c) != 3 {
		return false
	}
	_, err := currency.ParseISO(string(c))
	return err == nil
}

// MinorUnits returns the number of decimal places used by the currency
// (2 for USD, 0 for JPY). Unknown currencies report 2.
func (c Currency) MinorUnits() int32 {
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// Money is an amount tagged with its currency. Values are immutable.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// Sum adds amounts in a single currency. An empty input yields zero.
func Sum(c Currency, amounts ...decimal.Decimal) Money {
	m := Money{amount: decimal.Zero, currency: c}
	for _, a := range amounts {
		m.amount = m.amount.Add(a)
	}
	return m
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency code
func (m Money) Currency() Currency { return m.currency }

// Sub returns m - other. Mixing currencies is an error.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// WithinTolerance reports whether |m - other| <= tolerance
func (m Money) WithinTolerance(other Money, tolerance decimal.Decimal) (bool, error) {
	diff, err := m.Sub(other)
	if err != nil {
		return false, err
	}
	return diff.amount.Abs().LessThanOrEqual(tolerance), nil
}

// String formats the amount with the currency's minor units, e.g. "12.50 USD"
func (m Money) String() string {
	return m.amount.StringFixed(m.currency.MinorUnits()) + " " + string(m.currency)
}
