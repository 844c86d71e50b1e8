package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecord_Shape(t *testing.T) {
	svc := newTestService(t)
	res := svc.Process(context.Background(), cleanDoc("doc-001"))
	require.NoError(t, res.Err)

	data, err := res.Record.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "doc-001", decoded["doc_id"])
	assert.Equal(t, "success", decoded["status"])
	assert.NotContains(t, decoded, "processing_error")

	extraction := decoded["extraction"].(map[string]any)
	assert.Equal(t, "vendor_a", extraction["vendor"])
	fields := extraction["fields"].(map[string]any)
	total := fields["total"].(map[string]any)
	assert.Equal(t, "108.00", total["value"])
	assert.Equal(t, 0.95, total["confidence"])

	normalized := decoded["normalized"].(map[string]any)
	require.Contains(t, normalized, "total")
	normTotal := normalized["total"].(map[string]any)
	assert.InDelta(t, 108.0, normTotal["value"], 1e-9)
	assert.Equal(t, "USD", normalized["currency_code"].(map[string]any)["value"])

	validation := decoded["validation"].(map[string]any)
	assert.Equal(t, true, validation["passed"])
	assert.Contains(t, validation, "checks")

	routing := decoded["routing"].(map[string]any)
	assert.Equal(t, "AUTO_POST", routing["outcome"])
	assert.Empty(t, routing["reason_codes"])

	assert.Contains(t, decoded, "insights")
}

func TestAuditRecord_LineItems(t *testing.T) {
	doc := cleanDoc("doc-lines")
	fields := map[string]invoice.RawField{}
	for k, v := range doc.Fields {
		if k != "total" && k != "subtotal" && k != "tax" {
			fields[k] = v
		}
	}
	doc.Fields = fields
	doc.LineItems = []invoice.RawLineItem{
		{Description: "Paper", Amount: "100.00", Confidence: conf(0.95)},
		{Description: "Toner", Amount: "garbage", Confidence: conf(0.95)},
	}

	res := newTestService(t).Process(context.Background(), doc)
	require.NoError(t, res.Err)
	assert.Equal(t, invoice.OutcomeNeedsReview, res.Decision.Outcome)

	data, err := res.Record.Marshal()
	require.NoError(t, err)
	var decoded struct {
		Normalized map[string]struct {
			Value         json.RawMessage `json:"value"`
			CoercionError string          `json:"coercion_error"`
		} `json:"normalized"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	lines := decoded.Normalized["line_items"]
	assert.Contains(t, lines.CoercionError, "line 2")
	var items []LineItemSnapshot
	require.NoError(t, json.Unmarshal(lines.Value, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Paper", items[0].Description)
	assert.Empty(t, items[0].CoercionError)
	assert.Nil(t, items[1].Amount)
	assert.Contains(t, items[1].CoercionError, "amount")

	total := decoded.Normalized["total"]
	assert.Equal(t, "null", string(total.Value))
	assert.Contains(t, total.CoercionError, "cannot derive total")
}

func TestAuditRecord_FailureShape(t *testing.T) {
	svc := newTestService(t)
	res := svc.Process(context.Background(), cleanDoc(""))

	data, err := res.Record.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "error", decoded["status"])
	assert.NotContains(t, decoded, "routing")
	assert.NotContains(t, decoded, "normalized")
	pe := decoded["processing_error"].(map[string]any)
	assert.Equal(t, "EXTRACTED", pe["stage"])
	assert.Equal(t, "NORMALIZATION_ERROR", pe["code"])
}

func TestAuditRecord_Deterministic(t *testing.T) {
	svc := newTestService(t)

	a := svc.Process(context.Background(), cleanDoc("doc-001"))
	b := svc.Process(context.Background(), cleanDoc("doc-001"))

	fa, err := a.Record.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Record.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	c := svc.Process(context.Background(), mismatchDoc("doc-001"))
	fc, err := c.Record.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}
