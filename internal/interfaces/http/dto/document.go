package dto

import (
	"encoding/json"

	"github.com/erp/invoicerouter/internal/application/pipeline"
	"github.com/erp/invoicerouter/internal/domain/invoice"
)

// RouteDocumentRequest is the envelope accepted by the single document route.
// Payload is decoded per vendor after binding.
type RouteDocumentRequest struct {
	Vendor          string          `json:"vendor" binding:"required,vendor_kind"`
	DocID           string          `json:"doc_id" binding:"omitempty,max=256"`
	VendorVersion   string          `json:"vendor_version" binding:"omitempty,max=64"`
	PipelineVersion string          `json:"pipeline_version" binding:"omitempty,max=64"`
	Payload         json.RawMessage `json:"payload" binding:"required"`
}

// RouteBatchRequest carries a JSON array of document envelopes. Elements are
// not validated individually; a malformed element fails on its own.
type RouteBatchRequest struct {
	Documents json.RawMessage `json:"documents" binding:"required"`
}

// PublishInfo reports where the audit record went
type PublishInfo struct {
	Status string `json:"status"`
	Key    string `json:"key,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DocumentResultResponse is the API view of one processed document
type DocumentResultResponse struct {
	DocID       string               `json:"doc_id"`
	Stage       string               `json:"stage"`
	Status      string               `json:"status"`
	Publish     PublishInfo          `json:"publish"`
	AuditRecord pipeline.AuditRecord `json:"audit_record"`
}

// NewDocumentResultResponse converts a pipeline result
func NewDocumentResultResponse(res pipeline.Result) DocumentResultResponse {
	out := DocumentResultResponse{
		DocID:       res.DocID,
		Stage:       res.Stage.String(),
		Status:      string(res.Record.Status),
		Publish:     PublishInfo{Status: string(res.Publish), Key: res.PublishKey},
		AuditRecord: res.Record,
	}
	if res.PublishError != nil {
		out.Publish.Error = res.PublishError.Error()
	}
	return out
}

// BatchResultResponse is the API view of a processed batch
type BatchResultResponse struct {
	BatchID    string                   `json:"batch_id"`
	SummaryKey string                   `json:"summary_key,omitempty"`
	Summary    pipeline.BatchSummary    `json:"summary"`
	Results    []DocumentResultResponse `json:"results"`
}

// NewBatchResultResponse converts a pipeline batch result
func NewBatchResultResponse(batch *pipeline.BatchResult) BatchResultResponse {
	results := make([]DocumentResultResponse, len(batch.Results))
	for i, res := range batch.Results {
		results[i] = NewDocumentResultResponse(res)
	}
	return BatchResultResponse{
		BatchID:    batch.BatchID,
		SummaryKey: batch.SummaryKey,
		Summary:    batch.Summary,
		Results:    results,
	}
}

// PolicyResponse exposes the validation policy in effect
type PolicyResponse struct {
	PipelineVersion         string            `json:"pipeline_version"`
	LowConfidenceThreshold  float64           `json:"low_confidence_threshold"`
	HighTotalThreshold      string            `json:"high_total_threshold"`
	DefaultTolerance        string            `json:"default_tolerance"`
	CurrencyTolerance       map[string]string `json:"currency_tolerance"`
	MissingPOBlocking       bool              `json:"missing_po_blocking"`
	UnknownCurrencyBlocking bool              `json:"unknown_currency_blocking"`
}

// NewPolicyResponse converts a domain policy
func NewPolicyResponse(pipelineVersion string, p invoice.Policy) PolicyResponse {
	tolerances := make(map[string]string, len(p.CurrencyTolerance))
	for cur, tol := range p.CurrencyTolerance {
		tolerances[cur.String()] = tol.String()
	}
	return PolicyResponse{
		PipelineVersion:         pipelineVersion,
		LowConfidenceThreshold:  p.LowConfidenceThreshold,
		HighTotalThreshold:      p.HighTotalThreshold.String(),
		DefaultTolerance:        p.DefaultTolerance.String(),
		CurrencyTolerance:       tolerances,
		MissingPOBlocking:       p.MissingPOBlocking,
		UnknownCurrencyBlocking: p.UnknownCurrencyBlocking,
	}
}
