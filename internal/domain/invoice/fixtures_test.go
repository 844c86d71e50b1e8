package invoice

import (
	"github.com/shopspring/decimal"
)

func conf(v float64) *float64 {
	return &v
}

func field(value any, confidence float64) RawField {
	return RawField{Value: value, Confidence: conf(confidence)}
}

// cleanVendorADoc returns a vendor_a document that passes every check
func cleanVendorADoc() VendorDocument {
	return VendorDocument{
		Vendor:        VendorA,
		DocID:         "doc-001",
		VendorVersion: "2024-02-29",
		Fields: map[string]RawField{
			"invoice_number": field("INV-1001", 0.98),
			"invoice_date":   field("2024-01-15", 0.97),
			"due_date":       field("2024-02-14", 0.90),
			"currency":       field("USD", 0.99),
			"supplier_name":  field("Acme Office Supply", 0.96),
			"supplier_id":    field("TAX-778", 0.91),
			"po_number":      field("PO-4471", 0.93),
			"subtotal":       field("100.00", 0.95),
			"tax":            field("8.00", 0.95),
			"total":          field("108.00", 0.95),
		},
	}
}

func mustNormalize(doc VendorDocument) CanonicalInvoice {
	inv, err := NewNormalizer("1.0.0").Normalize(doc)
	if err != nil {
		panic(err)
	}
	return inv
}

func cleanInvoice() CanonicalInvoice {
	return mustNormalize(cleanVendorADoc())
}

func withField(doc VendorDocument, name string, f RawField) VendorDocument {
	fields := make(map[string]RawField, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		fields[k] = v
	}
	fields[name] = f
	doc.Fields = fields
	return doc
}

func withoutField(doc VendorDocument, name string) VendorDocument {
	fields := make(map[string]RawField, len(doc.Fields))
	for k, v := range doc.Fields {
		if k != name {
			fields[k] = v
		}
	}
	doc.Fields = fields
	return doc
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
