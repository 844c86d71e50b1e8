package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/invoicerouter/internal/application/pipeline"
	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/erp/invoicerouter/internal/infrastructure/storage"
	"github.com/erp/invoicerouter/internal/interfaces/http/dto"
	"github.com/erp/invoicerouter/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

const vendorAPayload = `{
	"fields": {
		"invoice_number": {"value": "A-1001", "confidence": 0.96},
		"invoice_date": {"value": "2024-02-01", "confidence": 0.94},
		"supplier_name": {"value": "Acme Office Supply", "confidence": 0.95},
		"currency": {"value": "USD", "confidence": 0.99},
		"subtotal": {"value": 100.00, "confidence": 0.9},
		"tax": {"value": "8.00", "confidence": 0.9},
		"total": {"value": %s, "confidence": 0.95},
		"po_number": {"value": "PO-4471", "confidence": 0.9}
	}
}`

func envelope(vendorKind, docID, total string) string {
	return fmt.Sprintf(`{"vendor": %q, "doc_id": %q, "vendor_version": "2.1", "payload": %s}`,
		vendorKind, docID, fmt.Sprintf(vendorAPayload, total))
}

type testEnv struct {
	engine *gin.Engine
	sink   *storage.MemoryArtifactStore
}

func newTestEnv(t *testing.T, maxBatch int) *testEnv {
	t.Helper()

	sink := storage.NewMemoryArtifactStore()
	svc, err := pipeline.NewService(pipeline.Config{
		PipelineVersion:  "1.0.0",
		Policy:           invoice.DefaultPolicy(),
		BatchConcurrency: 2,
		MaxBatchSize:     maxBatch,
	},
		pipeline.WithSink(sink, "audit"),
		pipeline.WithBatchIDGenerator(func() string { return "batch-test" }),
	)
	require.NoError(t, err)

	h := NewDocumentHandler(svc)
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.POST("/api/v1/documents/route", h.RouteDocument)
	engine.POST("/api/v1/documents/route/batch", h.RouteBatch)
	engine.GET("/api/v1/policy", h.GetPolicy)
	engine.GET("/health", NewHealthHandler("invoice-router", "1.0.0").Health)

	return &testEnv{engine: engine, sink: sink}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// documentResult mirrors dto.DocumentResultResponse; the validation report
// is kept raw because it is rendered keyed by check name.
type documentResult struct {
	DocID       string          `json:"doc_id"`
	Stage       string          `json:"stage"`
	Status      string          `json:"status"`
	Publish     dto.PublishInfo `json:"publish"`
	AuditRecord struct {
		Routing         *invoice.RoutingDecision  `json:"routing"`
		ProcessingError *pipeline.ProcessingError `json:"processing_error"`
		Validation      json.RawMessage           `json:"validation"`
	} `json:"audit_record"`
}

type documentEnvelope struct {
	Success bool           `json:"success"`
	Data    documentResult `json:"data"`
	Error   *dto.ErrorInfo `json:"error"`
}

func TestRouteDocument(t *testing.T) {
	t.Run("routed document", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route", envelope("vendor_a", "doc-1", "108.01"))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp documentEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "doc-1", resp.Data.DocID)
		assert.Equal(t, "ROUTED", resp.Data.Stage)
		assert.Equal(t, "success", resp.Data.Status)
		require.NotNil(t, resp.Data.AuditRecord.Routing)
		assert.Equal(t, invoice.OutcomeAutoPost, resp.Data.AuditRecord.Routing.Outcome)
		assert.Equal(t, "published", resp.Data.Publish.Status)
		assert.Equal(t, "audit/single/doc-1.json", resp.Data.Publish.Key)
		assert.Contains(t, env.sink.Keys(), "audit/single/doc-1.json")
	})

	t.Run("mismatch needs review", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route", envelope("vendor_a", "doc-2", "108.02"))

		require.Equal(t, http.StatusOK, w.Code)
		var resp documentEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, invoice.OutcomeNeedsReview, resp.Data.AuditRecord.Routing.Outcome)
		assert.Contains(t, resp.Data.AuditRecord.Routing.ReasonCodes, invoice.ReasonTotalMismatch)
	})

	t.Run("missing doc id fails normalization", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route", envelope("vendor_a", "", "108.00"))

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var resp documentEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeNormalization, resp.Error.Code)
		assert.Equal(t, "error", resp.Data.Status)
		require.NotNil(t, resp.Data.AuditRecord.ProcessingError)
		assert.Equal(t, pipeline.StageExtracted, resp.Data.AuditRecord.ProcessingError.Stage)
	})

	t.Run("malformed field map fails normalization", func(t *testing.T) {
		for _, payload := range []string{`{"fields": "garbage"}`, `{"fields": [1, 2, 3]}`, `{}`} {
			env := newTestEnv(t, 10)
			body := `{"vendor": "vendor_a", "doc_id": "m-1", "payload": ` + payload + `}`
			w := env.do(http.MethodPost, "/api/v1/documents/route", body)

			require.Equal(t, http.StatusUnprocessableEntity, w.Code, payload)
			var resp documentEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, dto.ErrCodeNormalization, resp.Error.Code, payload)
			require.NotNil(t, resp.Data.AuditRecord.ProcessingError, payload)
			assert.Nil(t, resp.Data.AuditRecord.Routing, payload)
		}
	})

	t.Run("payload must be an object", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route",
			`{"vendor": "vendor_a", "doc_id": "m-2", "payload": "not an object"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeInvalidPayload, resp.Error.Code)
		assert.Empty(t, env.sink.Keys())
	})

	t.Run("unknown vendor is a validation error", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route", envelope("acme_ocr", "doc-3", "1"))

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "vendor", resp.Error.Details[0].Field)
		assert.NotEmpty(t, resp.Error.RequestID)
	})

	t.Run("malformed json", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route", `{"vendor": `)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route", "")

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouteBatch(t *testing.T) {
	env := newTestEnv(t, 10)

	var buf bytes.Buffer
	buf.WriteString(`{"documents": [`)
	buf.WriteString(envelope("vendor_a", "doc-a", "108.00"))
	buf.WriteString(",")
	buf.WriteString(envelope("vendor_a", "doc-b", "999.00"))
	buf.WriteString(`, {"vendor": "acme_ocr", "doc_id": "doc-c", "payload": {}}, 42`)
	buf.WriteString(`]}`)

	w := env.do(http.MethodPost, "/api/v1/documents/route/batch", buf.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			BatchID    string                `json:"batch_id"`
			SummaryKey string                `json:"summary_key"`
			Summary    pipeline.BatchSummary `json:"summary"`
			Results    []documentResult      `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "batch-test", resp.Data.BatchID)
	require.Len(t, resp.Data.Results, 4)
	assert.Equal(t, "doc-a", resp.Data.Results[0].DocID)
	assert.Equal(t, "success", resp.Data.Results[0].Status)
	assert.Equal(t, "success", resp.Data.Results[1].Status)
	assert.Equal(t, "error", resp.Data.Results[2].Status)
	assert.Equal(t, "error", resp.Data.Results[3].Status)

	assert.Equal(t, 4, resp.Data.Summary.Total)
	assert.Equal(t, 2, resp.Data.Summary.Succeeded)
	assert.Equal(t, 2, resp.Data.Summary.Failed)
	assert.Equal(t, 1, resp.Data.Summary.AutoPostCount)
	assert.Equal(t, 1, resp.Data.Summary.ReasonCodeCounts["TOTAL_MISMATCH"])
	assert.Equal(t, "audit/batch-test/_summary.json", resp.Data.SummaryKey)
	assert.Contains(t, env.sink.Keys(), "audit/batch-test/0003-unidentified-3.json")
}

func TestRouteBatch_Errors(t *testing.T) {
	t.Run("documents must be an array", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route/batch", `{"documents": {"vendor": "vendor_a"}}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeInvalidPayload, resp.Error.Code)
	})

	t.Run("missing documents", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route/batch", `{}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		env := newTestEnv(t, 10)
		w := env.do(http.MethodPost, "/api/v1/documents/route/batch", `{"documents": []}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeEmptyBatch, resp.Error.Code)
	})

	t.Run("too large", func(t *testing.T) {
		env := newTestEnv(t, 1)
		body := `{"documents": [` + envelope("vendor_a", "a", "1") + "," + envelope("vendor_a", "b", "1") + `]}`
		w := env.do(http.MethodPost, "/api/v1/documents/route/batch", body)

		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeBatchTooLarge, resp.Error.Code)
	})
}

func TestGetPolicy(t *testing.T) {
	env := newTestEnv(t, 10)
	w := env.do(http.MethodGet, "/api/v1/policy", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data dto.PolicyResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1.0.0", resp.Data.PipelineVersion)
	assert.Equal(t, 0.7, resp.Data.LowConfidenceThreshold)
	assert.Equal(t, "100000", resp.Data.HighTotalThreshold)
	assert.Equal(t, "0.01", resp.Data.DefaultTolerance)
	assert.True(t, resp.Data.UnknownCurrencyBlocking)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 10)
	w := env.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "invoice-router", resp.Service)
}
