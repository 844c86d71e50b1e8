package invoice

import (
	"fmt"

	"github.com/erp/invoicerouter/internal/domain/shared"
	"github.com/erp/invoicerouter/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Policy holds the validation thresholds. It is built once at startup and
// copied into the Validator, so later changes to the caller's value have no
// effect on a running pipeline.
type Policy struct {
	// LowConfidenceThreshold is inclusive: a confidence equal to it passes
	LowConfidenceThreshold float64
	// HighTotalThreshold flags totals strictly above it for review
	HighTotalThreshold decimal.Decimal
	// CurrencyTolerance overrides DefaultTolerance per currency
	CurrencyTolerance       map[valueobject.Currency]decimal.Decimal
	DefaultTolerance        decimal.Decimal
	MissingPOBlocking       bool
	UnknownCurrencyBlocking bool
}

// DefaultLowConfidenceThreshold is the default minimum field confidence
const DefaultLowConfidenceThreshold = 0.7

// DefaultPolicy returns the policy used when no configuration is supplied
func DefaultPolicy() Policy {
	return Policy{
		LowConfidenceThreshold:  DefaultLowConfidenceThreshold,
		HighTotalThreshold:      decimal.NewFromInt(100000),
		CurrencyTolerance:       map[valueobject.Currency]decimal.Decimal{},
		DefaultTolerance:        decimal.RequireFromString("0.01"),
		MissingPOBlocking:       false,
		UnknownCurrencyBlocking: true,
	}
}

// Clone returns a deep copy of the policy
func (p Policy) Clone() Policy {
	out := p
	out.CurrencyTolerance = make(map[valueobject.Currency]decimal.Decimal, len(p.CurrencyTolerance))
	for c, tol := range p.CurrencyTolerance {
		out.CurrencyTolerance[valueobject.NormalizeCurrency(c.String())] = tol
	}
	return out
}

// ToleranceFor returns the reconciliation tolerance for a currency
func (p Policy) ToleranceFor(c valueobject.Currency) decimal.Decimal {
	if tol, ok := p.CurrencyTolerance[c]; ok {
		return tol
	}
	return p.DefaultTolerance
}

// Validate checks the policy values are usable
func (p Policy) Validate() error {
	if p.LowConfidenceThreshold < 0 || p.LowConfidenceThreshold > 1 {
		return shared.NewDomainError("INVALID_POLICY",
			fmt.Sprintf("low confidence threshold must be within [0, 1], got %v", p.LowConfidenceThreshold))
	}
	if p.HighTotalThreshold.IsNegative() {
		return shared.NewDomainError("INVALID_POLICY", "high total threshold cannot be negative")
	}
	if p.DefaultTolerance.IsNegative() {
		return shared.NewDomainError("INVALID_POLICY", "default tolerance cannot be negative")
	}
	for c, tol := range p.CurrencyTolerance {
		if tol.IsNegative() {
			return shared.NewDomainError("INVALID_POLICY",
				fmt.Sprintf("tolerance for %s cannot be negative", c))
		}
	}
	return nil
}
