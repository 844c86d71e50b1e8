// Package invoice holds the canonical invoice model and the deterministic
// normalize -> validate -> route decision pipeline built on it.
package invoice

import (
	"github.com/erp/invoicerouter/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// FieldName identifies a canonical invoice field
type FieldName string

const (
	FieldInvoiceNumber  FieldName = "invoice_number"
	FieldInvoiceDate    FieldName = "invoice_date"
	FieldDueDate        FieldName = "due_date"
	FieldCurrencyCode   FieldName = "currency_code"
	FieldSupplierName   FieldName = "supplier_name"
	FieldSupplierTaxID  FieldName = "supplier_tax_id"
	FieldPurchaseOrder  FieldName = "purchase_order"
	FieldSubtotal       FieldName = "subtotal"
	FieldTax            FieldName = "tax"
	FieldTotal          FieldName = "total"
	FieldLineItemAmount FieldName = "line_items.amount"
)

// String returns the field name
func (f FieldName) String() string {
	return string(f)
}

// RequiredFields returns the fields that must carry a value for a document
// to be postable, in the order they are reported.
func RequiredFields() []FieldName {
	return []FieldName{
		FieldInvoiceNumber,
		FieldInvoiceDate,
		FieldTotal,
		FieldSupplierName,
	}
}

// MonetaryFields returns the fields coerced to fixed-point decimals
func MonetaryFields() []FieldName {
	return []FieldName{
		FieldSubtotal,
		FieldTax,
		FieldTotal,
		FieldLineItemAmount,
	}
}

// ScalarFields returns every canonical scalar field in schema order
func ScalarFields() []FieldName {
	return []FieldName{
		FieldInvoiceNumber,
		FieldInvoiceDate,
		FieldDueDate,
		FieldCurrencyCode,
		FieldSupplierName,
		FieldSupplierTaxID,
		FieldPurchaseOrder,
		FieldSubtotal,
		FieldTax,
		FieldTotal,
	}
}

// IsMonetary reports whether the field holds a money amount
func IsMonetary(name FieldName) bool {
	for _, f := range MonetaryFields() {
		if f == name {
			return true
		}
	}
	return false
}

// Evidence locates an extracted value in the source document
type Evidence struct {
	Page   int    `json:"page"`
	Anchor string `json:"anchor"`
}

// FieldValue is a possibly-absent value with its extraction confidence.
// A nil Value means "not extracted" and is never read as zero.
type FieldValue[T any] struct {
	Value      *T
	Confidence *float64
	Evidence   *Evidence
}

// Present reports whether a value was extracted or derived
func (f FieldValue[T]) Present() bool {
	return f.Value != nil
}

// AuditEnvelope wraps a canonical field with the metadata needed to trace
// where it came from.
type AuditEnvelope[T any] struct {
	FieldValue[T]
	PipelineVersion string
	VendorVersion   string
	// VendorField is the vendor field name the value was read from
	VendorField string
	// Derived is set when the pipeline computed the value instead of the vendor
	Derived bool
	// CoercionError is set when the vendor supplied a value that could not be
	// converted to the canonical type. Value is nil in that case.
	CoercionError string
}

// Info returns the type-independent metadata of the field
func (e AuditEnvelope[T]) Info() FieldInfo {
	return FieldInfo{
		Present:       e.Value != nil,
		Confidence:    e.Confidence,
		Derived:       e.Derived,
		CoercionError: e.CoercionError,
		VendorField:   e.VendorField,
	}
}

// FieldInfo is the metadata view of a canonical field used by checks that
// iterate over fields of different types.
type FieldInfo struct {
	Present       bool
	Confidence    *float64
	Derived       bool
	CoercionError string
	VendorField   string
}

type (
	TextField     = AuditEnvelope[string]
	AmountField   = AuditEnvelope[decimal.Decimal]
	CurrencyField = AuditEnvelope[valueobject.Currency]
)

// LineItem is a single invoice line. It carries a confidence but not the
// full audit envelope.
type LineItem struct {
	Description   string
	Quantity      *decimal.Decimal
	UnitPrice     *decimal.Decimal
	Amount        *decimal.Decimal
	Confidence    *float64
	CoercionError string

	// amountErr is set when Amount could not be coerced
	amountErr string
}

// CanonicalInvoice is the vendor-independent invoice record
type CanonicalInvoice struct {
	DocID         string
	Vendor        VendorKind
	InvoiceNumber TextField
	InvoiceDate   TextField
	DueDate       TextField
	CurrencyCode  CurrencyField
	SupplierName  TextField
	SupplierTaxID TextField
	PurchaseOrder TextField
	Subtotal      AmountField
	Tax           AmountField
	Total         AmountField
	LineItems     []LineItem
}

// FieldInfo returns metadata for a scalar canonical field. The second
// result is false for names that are not scalar fields.
func (inv CanonicalInvoice) FieldInfo(name FieldName) (FieldInfo, bool) {
	switch name {
	case FieldInvoiceNumber:
		return inv.InvoiceNumber.Info(), true
	case FieldInvoiceDate:
		return inv.InvoiceDate.Info(), true
	case FieldDueDate:
		return inv.DueDate.Info(), true
	case FieldCurrencyCode:
		return inv.CurrencyCode.Info(), true
	case FieldSupplierName:
		return inv.SupplierName.Info(), true
	case FieldSupplierTaxID:
		return inv.SupplierTaxID.Info(), true
	case FieldPurchaseOrder:
		return inv.PurchaseOrder.Info(), true
	case FieldSubtotal:
		return inv.Subtotal.Info(), true
	case FieldTax:
		return inv.Tax.Info(), true
	case FieldTotal:
		return inv.Total.Info(), true
	}
	return FieldInfo{}, false
}

// FieldValueAny returns the field value as a plain Go value for
// serialisation: strings for text, decimals for amounts, nil when absent.
func (inv CanonicalInvoice) FieldValueAny(name FieldName) any {
	switch name {
	case FieldInvoiceNumber:
		return textValue(inv.InvoiceNumber)
	case FieldInvoiceDate:
		return textValue(inv.InvoiceDate)
	case FieldDueDate:
		return textValue(inv.DueDate)
	case FieldCurrencyCode:
		if inv.CurrencyCode.Value == nil {
			return nil
		}
		return inv.CurrencyCode.Value.String()
	case FieldSupplierName:
		return textValue(inv.SupplierName)
	case FieldSupplierTaxID:
		return textValue(inv.SupplierTaxID)
	case FieldPurchaseOrder:
		return textValue(inv.PurchaseOrder)
	case FieldSubtotal:
		return amountValue(inv.Subtotal)
	case FieldTax:
		return amountValue(inv.Tax)
	case FieldTotal:
		return amountValue(inv.Total)
	}
	return nil
}

// Currency returns the invoice currency, or DefaultCurrency when absent
func (inv CanonicalInvoice) Currency() valueobject.Currency {
	if inv.CurrencyCode.Value == nil || *inv.CurrencyCode.Value == "" {
		return valueobject.DefaultCurrency
	}
	return *inv.CurrencyCode.Value
}

func textValue(f TextField) any {
	if f.Value == nil {
		return nil
	}
	return *f.Value
}

func amountValue(f AmountField) any {
	if f.Value == nil {
		return nil
	}
	return *f.Value
}
