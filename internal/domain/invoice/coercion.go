package invoice

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/erp/invoicerouter/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ISODateLayout is the canonical date format (ISO-8601 calendar date)
const ISODateLayout = "2006-01-02"

// dateLayouts are tried in order. Slash dates are read month-first.
var dateLayouts = []string{
	ISODateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

var currencySymbols = map[string]valueobject.Currency{
	"$":   valueobject.USD,
	"US$": valueobject.USD,
	"€":   valueobject.EUR,
	"£":   valueobject.GBP,
	"¥":   valueobject.JPY,
	"₹":   valueobject.INR,
}

// amountNoise is stripped from monetary strings before parsing
var amountNoise = strings.NewReplacer(
	"US$", "", "$", "", "€", "", "£", "", "¥", "", "₹", "",
	" ", "", "\u00a0", "", "'", "",
)

// coerceText converts a vendor value to trimmed text.
// Empty strings count as absent.
func coerceText(v any) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		s := strings.TrimSpace(t)
		return s, s != "", nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true, nil
	case int:
		return strconv.Itoa(t), true, nil
	case int64:
		return strconv.FormatInt(t, 10), true, nil
	case json.Number:
		return t.String(), true, nil
	}
	return "", false, fmt.Errorf("unsupported text value of type %T", v)
}

// coerceAmount converts a vendor value to a fixed-point decimal
func coerceAmount(v any) (decimal.Decimal, bool, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false, fmt.Errorf("non-finite amount %v", t)
		}
		return decimal.NewFromFloat(t), true, nil
	case int:
		return decimal.NewFromInt(int64(t)), true, nil
	case int64:
		return decimal.NewFromInt(t), true, nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("invalid amount %q", t.String())
		}
		return d, true, nil
	case decimal.Decimal:
		return t, true, nil
	case string:
		return parseAmountString(t)
	}
	return decimal.Zero, false, fmt.Errorf("unsupported amount value of type %T", v)
}

func parseAmountString(raw string) (decimal.Decimal, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Trailing or leading ISO code, e.g. "100.00 USD"
	if len(s) > 3 {
		if valueobject.NormalizeCurrency(s[len(s)-3:]).IsKnown() {
			s = s[:len(s)-3]
		} else if valueobject.NormalizeCurrency(s[:3]).IsKnown() {
			s = s[3:]
		}
	}
	s = amountNoise.Replace(s)

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot && len(s)-lastComma-1 <= 2 {
		// Decimal comma: "1.234,56"
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, true, nil
}

// coerceDate converts a vendor value to YYYY-MM-DD. Text that matches no
// known layout is returned unchanged so the date check can report it.
func coerceDate(v any) (string, bool, error) {
	s, ok, err := coerceText(v)
	if err != nil || !ok {
		return "", ok, err
	}
	for _, layout := range dateLayouts {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t.Format(ISODateLayout), true, nil
		}
	}
	return s, true, nil
}

// coerceCurrency upper-cases a currency code and maps common symbols.
// Unknown codes pass through.
func coerceCurrency(v any) (valueobject.Currency, bool, error) {
	s, ok, err := coerceText(v)
	if err != nil || !ok {
		return "", ok, err
	}
	if c, found := currencySymbols[s]; found {
		return c, true, nil
	}
	return valueobject.NormalizeCurrency(s), true, nil
}

// clampConfidence keeps confidences inside [0, 1]. NaN becomes absent.
func clampConfidence(c *float64) *float64 {
	if c == nil || math.IsNaN(*c) {
		return nil
	}
	v := math.Max(0, math.Min(1, *c))
	return &v
}

// IsISODate reports whether s parses as an ISO-8601 date or timestamp
func IsISODate(s string) bool {
	if _, err := time.Parse(ISODateLayout, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}
