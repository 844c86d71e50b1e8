package invoice

// VendorKind names a supported extraction vendor. Each kind has a fixed
// table mapping its field names to canonical fields.
type VendorKind string

const (
	VendorAzure VendorKind = "azure_document_intelligence"
	VendorA     VendorKind = "vendor_a"
	VendorB     VendorKind = "vendor_b"
)

// IsValid checks if the vendor kind is supported
func (k VendorKind) IsValid() bool {
	_, ok := fieldMappings[k]
	return ok
}

// String returns the vendor kind
func (k VendorKind) String() string {
	return string(k)
}

// AllVendorKinds returns all supported vendor kinds
func AllVendorKinds() []VendorKind {
	return []VendorKind{VendorAzure, VendorA, VendorB}
}

// FieldMapping pairs a vendor field name with its canonical field
type FieldMapping struct {
	VendorField string
	Canonical   FieldName
}

// fieldMappings is ordered by canonical schema order so normalisation
// visits fields deterministically.
var fieldMappings = map[VendorKind][]FieldMapping{
	VendorAzure: {
		{VendorField: "InvoiceId", Canonical: FieldInvoiceNumber},
		{VendorField: "InvoiceDate", Canonical: FieldInvoiceDate},
		{VendorField: "DueDate", Canonical: FieldDueDate},
		{VendorField: "CurrencyCode", Canonical: FieldCurrencyCode},
		{VendorField: "VendorName", Canonical: FieldSupplierName},
		{VendorField: "VendorTaxId", Canonical: FieldSupplierTaxID},
		{VendorField: "PurchaseOrder", Canonical: FieldPurchaseOrder},
		{VendorField: "SubTotal", Canonical: FieldSubtotal},
		{VendorField: "TotalTax", Canonical: FieldTax},
		{VendorField: "InvoiceTotal", Canonical: FieldTotal},
	},
	VendorA: {
		{VendorField: "invoice_number", Canonical: FieldInvoiceNumber},
		{VendorField: "invoice_date", Canonical: FieldInvoiceDate},
		{VendorField: "due_date", Canonical: FieldDueDate},
		{VendorField: "currency", Canonical: FieldCurrencyCode},
		{VendorField: "supplier_name", Canonical: FieldSupplierName},
		{VendorField: "supplier_id", Canonical: FieldSupplierTaxID},
		{VendorField: "po_number", Canonical: FieldPurchaseOrder},
		{VendorField: "subtotal", Canonical: FieldSubtotal},
		{VendorField: "tax", Canonical: FieldTax},
		{VendorField: "total", Canonical: FieldTotal},
	},
	VendorB: {
		{VendorField: "invoice_num", Canonical: FieldInvoiceNumber},
		{VendorField: "date", Canonical: FieldInvoiceDate},
		{VendorField: "due_date", Canonical: FieldDueDate},
		{VendorField: "currency_code", Canonical: FieldCurrencyCode},
		{VendorField: "vendor_name", Canonical: FieldSupplierName},
		{VendorField: "vendor_id", Canonical: FieldSupplierTaxID},
		{VendorField: "purchase_order", Canonical: FieldPurchaseOrder},
		{VendorField: "amount_before_tax", Canonical: FieldSubtotal},
		{VendorField: "tax_amount", Canonical: FieldTax},
		{VendorField: "amount_due", Canonical: FieldTotal},
	},
}

// FieldMappings returns a copy of the mapping table for a vendor kind
func FieldMappings(kind VendorKind) []FieldMapping {
	m := fieldMappings[kind]
	out := make([]FieldMapping, len(m))
	copy(out, m)
	return out
}

// RawField is one vendor-extracted field before coercion. Value holds
// whatever JSON-compatible value the vendor returned (string, float64,
// bool or nil).
type RawField struct {
	Value      any
	Confidence *float64
	Evidence   *Evidence
}

// RawLineItem is one vendor-extracted line before coercion
type RawLineItem struct {
	Description any
	Quantity    any
	UnitPrice   any
	Amount      any
	Confidence  *float64
}

// VendorDocument is the vendor adapter output handed to the Normalizer.
// Fields is keyed by the vendor's own field names.
type VendorDocument struct {
	Vendor          VendorKind
	DocID           string
	PipelineVersion string
	VendorVersion   string
	Fields          map[string]RawField
	LineItems       []RawLineItem
}
