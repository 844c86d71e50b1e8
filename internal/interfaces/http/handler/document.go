package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/erp/invoicerouter/internal/application/pipeline"
	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/erp/invoicerouter/internal/infrastructure/logger"
	"github.com/erp/invoicerouter/internal/infrastructure/vendor"
	"github.com/erp/invoicerouter/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

// DocumentRouter is the pipeline surface the HTTP layer needs
type DocumentRouter interface {
	Process(ctx context.Context, doc invoice.VendorDocument) pipeline.Result
	ProcessBatch(ctx context.Context, docs []invoice.VendorDocument) (*pipeline.BatchResult, error)
	Policy() invoice.Policy
	PipelineVersion() string
}

// DocumentHandler handles document routing endpoints
type DocumentHandler struct {
	BaseHandler
	router DocumentRouter
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(router DocumentRouter) *DocumentHandler {
	return &DocumentHandler{router: router}
}

// RouteDocument runs one vendor document through the pipeline.
// Routed documents answer 200; documents that fail processing answer with
// the status of their error code and carry the audit record in data.
//
// POST /api/v1/documents/route
func (h *DocumentHandler) RouteDocument(c *gin.Context) {
	var req dto.RouteDocumentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	doc, err := vendor.DecodePayload(invoice.VendorKind(req.Vendor), req.DocID, req.VendorVersion, req.Payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	doc.PipelineVersion = req.PipelineVersion

	res := h.router.Process(c.Request.Context(), doc)
	body := dto.NewDocumentResultResponse(res)
	if res.Err != nil {
		code := dto.ErrCodeProcessing
		if pe := res.Record.ProcessingError; pe != nil {
			code = dto.NormalizeErrorCode(pe.Code)
		}
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithData(code, res.Err.Error(), getRequestID(c), body))
		return
	}
	h.Success(c, body)
}

// RouteBatch processes a batch of envelopes concurrently. Per-document
// failures are reported inside the batch result, never as a request error.
//
// POST /api/v1/documents/route/batch
func (h *DocumentHandler) RouteBatch(c *gin.Context) {
	var req dto.RouteBatchRequest
	if !h.bindJSON(c, &req) {
		return
	}

	docs, err := vendor.DecodeBatch(req.Documents)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	batch, err := h.router.ProcessBatch(c.Request.Context(), docs)
	if err != nil {
		logger.L(c.Request.Context()).Warn("Batch rejected", zap.Int("documents", len(docs)), zap.Error(err))
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewBatchResultResponse(batch))
}

// GetPolicy returns the validation policy in effect
//
// GET /api/v1/policy
func (h *DocumentHandler) GetPolicy(c *gin.Context) {
	h.Success(c, dto.NewPolicyResponse(h.router.PipelineVersion(), h.router.Policy()))
}

// bindJSON reads the body into req and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *DocumentHandler) bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindWith(req, binding.JSON)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxBytesErr):
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		h.BadRequest(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
	case errors.Is(err, io.EOF):
		h.BadRequest(c, dto.ErrCodeInvalidJSON, "Request body is empty")
	default:
		h.ValidationError(c, err)
	}
	return false
}
