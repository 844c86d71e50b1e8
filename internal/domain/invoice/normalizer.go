package invoice

import (
	"fmt"
	"strings"

	"github.com/erp/invoicerouter/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// DerivedTotalDefaultConfidence is used for a line-item derived total when
// none of the contributing lines report a confidence.
const DerivedTotalDefaultConfidence = 0.5

// Normalizer maps a vendor document onto the canonical schema
type Normalizer struct {
	pipelineVersion string
}

// NewNormalizer creates a Normalizer. pipelineVersion is stamped on every
// field unless the vendor document carries its own.
func NewNormalizer(pipelineVersion string) *Normalizer {
	return &Normalizer{pipelineVersion: pipelineVersion}
}

// PipelineVersion returns the default pipeline version
func (n *Normalizer) PipelineVersion() string {
	return n.pipelineVersion
}

// Normalize converts a vendor document into a CanonicalInvoice.
// Missing optional fields never fail; only a missing doc_id, a nil field
// map or an unsupported vendor return a NormalizationError.
func (n *Normalizer) Normalize(doc VendorDocument) (CanonicalInvoice, error) {
	docID := strings.TrimSpace(doc.DocID)
	if docID == "" {
		return CanonicalInvoice{}, NewNormalizationError("", "doc_id is required")
	}
	if !doc.Vendor.IsValid() {
		return CanonicalInvoice{}, NewNormalizationError(docID, fmt.Sprintf("unsupported vendor %q", doc.Vendor))
	}
	if doc.Fields == nil {
		return CanonicalInvoice{}, NewNormalizationError(docID, "vendor field map is missing")
	}

	b := fieldBuilder{
		fields:          doc.Fields,
		pipelineVersion: doc.PipelineVersion,
		vendorVersion:   doc.VendorVersion,
	}
	if b.pipelineVersion == "" {
		b.pipelineVersion = n.pipelineVersion
	}

	inv := CanonicalInvoice{
		DocID:  docID,
		Vendor: doc.Vendor,
	}
	for _, m := range fieldMappings[doc.Vendor] {
		switch m.Canonical {
		case FieldInvoiceNumber:
			inv.InvoiceNumber = b.text(m.VendorField)
		case FieldInvoiceDate:
			inv.InvoiceDate = b.date(m.VendorField)
		case FieldDueDate:
			inv.DueDate = b.date(m.VendorField)
		case FieldCurrencyCode:
			inv.CurrencyCode = b.currency(m.VendorField)
		case FieldSupplierName:
			inv.SupplierName = b.text(m.VendorField)
		case FieldSupplierTaxID:
			inv.SupplierTaxID = b.text(m.VendorField)
		case FieldPurchaseOrder:
			inv.PurchaseOrder = b.text(m.VendorField)
		case FieldSubtotal:
			inv.Subtotal = b.amount(m.VendorField)
		case FieldTax:
			inv.Tax = b.amount(m.VendorField)
		case FieldTotal:
			inv.Total = b.amount(m.VendorField)
		}
	}

	inv.LineItems = normalizeLineItems(doc.LineItems)
	if derived, ok := deriveTotal(inv.Total, inv.LineItems); ok {
		inv.Total = derived
	}

	return inv, nil
}

// deriveTotal applies the line-item fallback: a missing or zero total is
// replaced by the rounded sum of line amounts, flagged as derived. A line
// amount that failed coercion makes the sum unknowable, so the total is left
// without a value and carries the cause instead.
func deriveTotal(total AmountField, items []LineItem) (AmountField, bool) {
	if total.Value != nil && !total.Value.IsZero() {
		return total, false
	}

	var bad []string
	for i, item := range items {
		if item.amountErr != "" {
			bad = append(bad, fmt.Sprintf("line %d amount %s", i+1, item.amountErr))
		}
	}
	if len(bad) > 0 {
		unknown := total
		unknown.Value = nil
		unknown.Confidence = nil
		unknown.Evidence = nil
		unknown.Derived = false
		unknown.CoercionError = "cannot derive total from line items: " + strings.Join(bad, "; ")
		return unknown, true
	}

	sum := decimal.Zero
	contributing := 0
	var minConf *float64
	for _, item := range items {
		if item.Amount == nil {
			continue
		}
		sum = sum.Add(*item.Amount)
		contributing++
		if item.Confidence != nil && (minConf == nil || *item.Confidence < *minConf) {
			c := *item.Confidence
			minConf = &c
		}
	}
	if contributing == 0 {
		return total, false
	}

	if minConf == nil {
		c := DerivedTotalDefaultConfidence
		minConf = &c
	}
	value := sum.Round(2)

	derived := total
	derived.Value = &value
	derived.Confidence = minConf
	derived.Evidence = nil
	derived.Derived = true
	derived.CoercionError = ""
	return derived, true
}

func normalizeLineItems(raw []RawLineItem) []LineItem {
	if len(raw) == 0 {
		return nil
	}
	items := make([]LineItem, 0, len(raw))
	for i, r := range raw {
		item := LineItem{Confidence: clampConfidence(r.Confidence)}
		var problems []string

		if desc, ok, err := coerceText(r.Description); err != nil {
			problems = append(problems, "description: "+err.Error())
		} else if ok {
			item.Description = desc
		}
		item.Quantity = optionalAmount(r.Quantity, "quantity", &problems)
		item.UnitPrice = optionalAmount(r.UnitPrice, "unit_price", &problems)
		before := len(problems)
		item.Amount = optionalAmount(r.Amount, "amount", &problems)
		if len(problems) > before {
			item.amountErr = strings.TrimPrefix(problems[before], "amount: ")
		}

		if len(problems) > 0 {
			item.CoercionError = fmt.Sprintf("line %d: %s", i+1, strings.Join(problems, "; "))
		}
		items = append(items, item)
	}
	return items
}

func optionalAmount(v any, name string, problems *[]string) *decimal.Decimal {
	d, ok, err := coerceAmount(v)
	if err != nil {
		*problems = append(*problems, name+": "+err.Error())
		return nil
	}
	if !ok {
		return nil
	}
	return &d
}

// fieldBuilder wraps vendor fields into audit envelopes
type fieldBuilder struct {
	fields          map[string]RawField
	pipelineVersion string
	vendorVersion   string
}

func (b fieldBuilder) lookup(vendorField string) (RawField, bool) {
	raw, ok := b.fields[vendorField]
	return raw, ok
}

func envelope[T any](b fieldBuilder, vendorField string, raw RawField) AuditEnvelope[T] {
	env := AuditEnvelope[T]{
		PipelineVersion: b.pipelineVersion,
		VendorVersion:   b.vendorVersion,
		VendorField:     vendorField,
	}
	env.Confidence = clampConfidence(raw.Confidence)
	if raw.Evidence != nil {
		ev := *raw.Evidence
		env.Evidence = &ev
	}
	return env
}

func (b fieldBuilder) text(vendorField string) TextField {
	raw, found := b.lookup(vendorField)
	env := envelope[string](b, vendorField, raw)
	if !found {
		return env
	}
	v, ok, err := coerceText(raw.Value)
	return withValue(env, v, ok, err)
}

func (b fieldBuilder) date(vendorField string) TextField {
	raw, found := b.lookup(vendorField)
	env := envelope[string](b, vendorField, raw)
	if !found {
		return env
	}
	v, ok, err := coerceDate(raw.Value)
	return withValue(env, v, ok, err)
}

func (b fieldBuilder) currency(vendorField string) CurrencyField {
	raw, found := b.lookup(vendorField)
	env := envelope[valueobject.Currency](b, vendorField, raw)
	if !found {
		return env
	}
	v, ok, err := coerceCurrency(raw.Value)
	return withValue(env, v, ok, err)
}

func (b fieldBuilder) amount(vendorField string) AmountField {
	raw, found := b.lookup(vendorField)
	env := envelope[decimal.Decimal](b, vendorField, raw)
	if !found {
		return env
	}
	v, ok, err := coerceAmount(raw.Value)
	return withValue(env, v, ok, err)
}

func withValue[T any](env AuditEnvelope[T], v T, ok bool, err error) AuditEnvelope[T] {
	if err != nil {
		env.CoercionError = err.Error()
		return env
	}
	if ok {
		env.Value = &v
	}
	return env
}
