package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

// RecordStatus tells whether a document produced a routing decision
type RecordStatus string

const (
	StatusSuccess RecordStatus = "success"
	StatusError   RecordStatus = "error"
)

// FieldSnapshot is one field as it appears in the audit record
type FieldSnapshot struct {
	Value         any      `json:"value"`
	Confidence    *float64 `json:"confidence"`
	Derived       bool     `json:"derived,omitempty"`
	CoercionError string   `json:"coercion_error,omitempty"`
}

// LineItemSnapshot is one normalized line item in the audit record
type LineItemSnapshot struct {
	Description   string   `json:"description,omitempty"`
	Quantity      any      `json:"quantity"`
	UnitPrice     any      `json:"unit_price"`
	Amount        any      `json:"amount"`
	Confidence    *float64 `json:"confidence"`
	CoercionError string   `json:"coercion_error,omitempty"`
}

// lineItemsField is the normalized entry holding the line items. Its value
// is the item list; its coercion_error joins the per-line problems.
const lineItemsField = "line_items"

// Extraction is the vendor output as received, keyed by vendor field name
type Extraction struct {
	Vendor        string                   `json:"vendor"`
	VendorVersion string                   `json:"vendor_version,omitempty"`
	Fields        map[string]FieldSnapshot `json:"fields"`
}

// ProcessingError describes why a document stopped before routing
type ProcessingError struct {
	Stage   Stage  `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuditRecord is the per-document artifact sent to the observability sink.
// It contains no timestamps so identical inputs serialise identically.
type AuditRecord struct {
	DocID           string                    `json:"doc_id"`
	Extraction      Extraction                `json:"extraction"`
	Normalized      map[string]FieldSnapshot  `json:"normalized,omitempty"`
	Validation      *invoice.ValidationReport `json:"validation,omitempty"`
	Routing         *invoice.RoutingDecision  `json:"routing,omitempty"`
	Status          RecordStatus              `json:"status"`
	Insights        *invoice.Insights         `json:"insights,omitempty"`
	ProcessingError *ProcessingError          `json:"processing_error,omitempty"`
}

// Marshal renders the record as JSON. encoding/json sorts map keys, so the
// output is stable for a given record.
func (r AuditRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Fingerprint is the hex SHA-256 of the marshalled record
func (r AuditRecord) Fingerprint() (string, error) {
	data, err := r.Marshal()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func newExtraction(doc invoice.VendorDocument) Extraction {
	fields := make(map[string]FieldSnapshot, len(doc.Fields))
	for name, f := range doc.Fields {
		fields[name] = FieldSnapshot{Value: f.Value, Confidence: f.Confidence}
	}
	return Extraction{
		Vendor:        doc.Vendor.String(),
		VendorVersion: doc.VendorVersion,
		Fields:        fields,
	}
}

func newNormalized(inv invoice.CanonicalInvoice) map[string]FieldSnapshot {
	out := make(map[string]FieldSnapshot, len(invoice.ScalarFields()))
	for _, name := range invoice.ScalarFields() {
		info, _ := inv.FieldInfo(name)
		out[name.String()] = FieldSnapshot{
			Value:         snapshotValue(inv.FieldValueAny(name)),
			Confidence:    info.Confidence,
			Derived:       info.Derived,
			CoercionError: info.CoercionError,
		}
	}
	if len(inv.LineItems) > 0 {
		out[lineItemsField] = lineItemsSnapshot(inv.LineItems)
	}
	return out
}

func lineItemsSnapshot(items []invoice.LineItem) FieldSnapshot {
	lines := make([]LineItemSnapshot, len(items))
	var problems []string
	for i, item := range items {
		lines[i] = LineItemSnapshot{
			Description:   item.Description,
			Quantity:      decimalPtr(item.Quantity),
			UnitPrice:     decimalPtr(item.UnitPrice),
			Amount:        decimalPtr(item.Amount),
			Confidence:    item.Confidence,
			CoercionError: item.CoercionError,
		}
		if item.CoercionError != "" {
			problems = append(problems, item.CoercionError)
		}
	}
	return FieldSnapshot{Value: lines, CoercionError: strings.Join(problems, "; ")}
}

func decimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return json.Number(d.String())
}

// snapshotValue renders decimals as JSON numbers with their exact digits
func snapshotValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}

// reasonStrings flattens reason codes for metrics and span attributes
func reasonStrings(codes []invoice.ReasonCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.String()
	}
	return out
}
