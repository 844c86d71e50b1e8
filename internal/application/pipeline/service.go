package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/erp/invoicerouter/internal/domain/shared"
	"github.com/erp/invoicerouter/internal/infrastructure/logger"
	"github.com/erp/invoicerouter/internal/infrastructure/storage"
	"github.com/erp/invoicerouter/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Error codes reported in processing_error.code besides domain error codes
const (
	CodeProcessingError = "PROCESSING_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeCancelled       = "CANCELLED"
	CodeBatchTooLarge   = "BATCH_TOO_LARGE"
	CodeEmptyBatch      = "EMPTY_BATCH"
)

const (
	defaultConcurrency = 8
	recordContentType  = "application/json"
	singleBatchID      = "single"
)

// MetricsRecorder receives pipeline measurements
type MetricsRecorder interface {
	RecordStage(ctx context.Context, vendor, stage string, d time.Duration)
	RecordRouted(ctx context.Context, vendor, outcome string, confidence float64, reasons []string)
	RecordFailure(ctx context.Context, vendor, stage, errorCode string)
	RecordDuplicate(ctx context.Context, vendor string)
	RecordBatch(ctx context.Context, total, autoPosted int, d time.Duration)
}

// ArtifactSink stores audit records and batch summaries
type ArtifactSink interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type normalizer interface {
	Normalize(doc invoice.VendorDocument) (invoice.CanonicalInvoice, error)
}

// Config holds the pipeline settings fixed at startup
type Config struct {
	PipelineVersion  string
	Policy           invoice.Policy
	BatchConcurrency int
	MaxBatchSize     int
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records stage timings and outcomes
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSink publishes audit records under prefix
func WithSink(sink ArtifactSink, prefix string) Option {
	return func(s *Service) {
		s.sink = sink
		s.prefix = prefix
	}
}

// WithIdempotency skips audit records already published within ttl
func WithIdempotency(store shared.IdempotencyStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.idempotency = store
		s.idempotencyTTL = ttl
	}
}

// WithClassifier overrides the category rule table
func WithClassifier(rules []invoice.CategoryRule) Option {
	return func(s *Service) {
		s.classifier = invoice.NewClassifier(rules)
	}
}

// WithBatchIDGenerator replaces the uuid batch id source
func WithBatchIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newBatchID = gen
		}
	}
}

// Service runs vendor documents through normalize, validate and route,
// then publishes the audit record of each one.
type Service struct {
	cfg            Config
	normalizer     normalizer
	validator      *invoice.Validator
	router         *invoice.Router
	classifier     *invoice.Classifier
	metrics        MetricsRecorder
	sink           ArtifactSink
	prefix         string
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	newBatchID     func() string
}

// NewService creates a Service. The policy is validated once here and is
// immutable afterwards.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validation policy: %w", err)
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultConcurrency
	}

	s := &Service{
		cfg:        cfg,
		normalizer: invoice.NewNormalizer(cfg.PipelineVersion),
		validator:  invoice.NewValidator(cfg.Policy.Clone()),
		router:     invoice.NewRouter(),
		classifier: invoice.NewClassifier(nil),
		metrics:    noopMetrics{},
		newBatchID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.classifier = s.classifier.WithLowConfidenceThreshold(cfg.Policy.LowConfidenceThreshold)
	return s, nil
}

// Policy returns the validation policy in effect
func (s *Service) Policy() invoice.Policy {
	return s.validator.Policy()
}

// PipelineVersion returns the version stamped on normalized invoices
func (s *Service) PipelineVersion() string {
	return s.cfg.PipelineVersion
}

// PublishStatus tells what happened to a document's audit record
type PublishStatus string

const (
	PublishSkipped   PublishStatus = "skipped"
	PublishPublished PublishStatus = "published"
	PublishDuplicate PublishStatus = "duplicate"
	PublishFailed    PublishStatus = "failed"
)

// Result is the outcome of one document
type Result struct {
	DocID    string
	Vendor   invoice.VendorKind
	Stage    Stage
	Invoice  *invoice.CanonicalInvoice
	Report   *invoice.ValidationReport
	Decision *invoice.RoutingDecision
	Insights *invoice.Insights
	Record   AuditRecord
	Err      error

	Publish      PublishStatus
	PublishKey   string
	PublishError error
}

// Succeeded reports whether the document was routed
func (r Result) Succeeded() bool {
	return r.Err == nil && r.Decision != nil
}

// Process runs one document through the pipeline and publishes its audit
// record. Errors are reported on the Result, never returned.
func (s *Service) Process(ctx context.Context, doc invoice.VendorDocument) Result {
	res := s.process(ctx, doc)
	s.publish(ctx, singleBatchID, -1, &res)
	return res
}

func (s *Service) process(ctx context.Context, doc invoice.VendorDocument) (res Result) {
	ctx = logger.WithDocID(ctx, doc.DocID)
	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", "process",
		telemetry.WithAttribute(telemetry.SpanAttrDocID, doc.DocID),
		telemetry.WithAttribute(telemetry.SpanAttrVendor, doc.Vendor.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPipelineVersion, s.cfg.PipelineVersion),
	)
	defer span.End()

	tracker := newStageTracker()
	res = Result{
		DocID:  doc.DocID,
		Vendor: doc.Vendor,
		Stage:  tracker.current,
		Record: AuditRecord{
			DocID:      doc.DocID,
			Extraction: newExtraction(doc),
			Status:     StatusError,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			err := shared.NewDomainError(CodeInternalError, fmt.Sprintf("panic during processing: %v", r))
			logger.L(ctx).Error("Recovered panic while processing document",
				zap.String("stage", tracker.current.String()),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
			s.fail(ctx, &res, tracker.current, err)
		}
		telemetry.SetAttributes(span, telemetry.SpanAttrStage, res.Stage.String())
		if res.Err != nil {
			telemetry.RecordError(span, res.Err)
			return
		}
		telemetry.SetOK(span)
	}()

	if err := ctx.Err(); err != nil {
		s.fail(ctx, &res, tracker.current, shared.WrapDomainError(CodeCancelled, "processing cancelled", err))
		return res
	}

	vendor := doc.Vendor.String()
	mark := time.Now()
	advance := func(next Stage) error {
		if err := tracker.advance(next); err != nil {
			return err
		}
		res.Stage = next
		s.metrics.RecordStage(ctx, vendor, next.String(), time.Since(mark))
		mark = time.Now()
		logger.L(ctx).Debug("Stage complete", zap.String("stage", next.String()))
		return nil
	}

	inv, err := s.normalizer.Normalize(doc)
	if err != nil {
		s.fail(ctx, &res, tracker.current, err)
		return res
	}
	if err := advance(StageNormalized); err != nil {
		s.fail(ctx, &res, tracker.current, err)
		return res
	}
	res.Invoice = &inv
	res.Record.Normalized = newNormalized(inv)

	report := s.validator.Validate(inv)
	if err := advance(StageValidated); err != nil {
		s.fail(ctx, &res, tracker.current, err)
		return res
	}
	res.Report = &report
	res.Record.Validation = &report

	decision := s.router.Route(inv, report)
	if err := advance(StageRouted); err != nil {
		s.fail(ctx, &res, tracker.current, err)
		return res
	}
	insights := s.classifier.Classify(inv, report)

	res.Decision = &decision
	res.Insights = &insights
	res.Record.Routing = &decision
	res.Record.Insights = &insights
	res.Record.Status = StatusSuccess

	reasons := reasonStrings(decision.ReasonCodes)
	s.metrics.RecordRouted(ctx, vendor, decision.Outcome.String(), decision.Confidence, reasons)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOutcome, decision.Outcome.String(),
		telemetry.SpanAttrReasonCodes, reasons,
	)
	logger.L(ctx).Info("Document routed",
		zap.String("vendor", vendor),
		zap.String("outcome", decision.Outcome.String()),
		zap.Float64("confidence", decision.Confidence),
		zap.Strings("reason_codes", reasons),
	)
	return res
}

// fail halts the document at stage and fills in processing_error
func (s *Service) fail(ctx context.Context, res *Result, stage Stage, err error) {
	code := errorCode(err)
	res.Err = err
	res.Stage = stage
	res.Decision = nil
	res.Insights = nil
	res.Record.Status = StatusError
	res.Record.Routing = nil
	res.Record.Insights = nil
	res.Record.ProcessingError = &ProcessingError{
		Stage:   stage,
		Code:    code,
		Message: err.Error(),
	}

	s.metrics.RecordFailure(ctx, res.Vendor.String(), stage.String(), code)
	logger.L(ctx).Warn("Document processing failed",
		zap.String("vendor", res.Vendor.String()),
		zap.String("stage", stage.String()),
		zap.String("error_code", code),
		zap.Error(err),
	)
}

func errorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeProcessingError
}

// BatchResult holds per-document results in input order plus the summary
type BatchResult struct {
	BatchID    string
	Results    []Result
	Summary    BatchSummary
	SummaryKey string
}

// ProcessBatch processes docs concurrently. A failing document never stops
// the others; the only errors returned concern the batch as a whole.
func (s *Service) ProcessBatch(ctx context.Context, docs []invoice.VendorDocument) (*BatchResult, error) {
	if len(docs) == 0 {
		return nil, shared.NewDomainError(CodeEmptyBatch, "batch contains no documents")
	}
	if s.cfg.MaxBatchSize > 0 && len(docs) > s.cfg.MaxBatchSize {
		return nil, shared.NewDomainError(CodeBatchTooLarge,
			fmt.Sprintf("batch of %d documents exceeds the limit of %d", len(docs), s.cfg.MaxBatchSize))
	}

	batchID := s.newBatchID()
	ctx = logger.WithBatchID(ctx, batchID)
	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", "process_batch",
		telemetry.WithAttribute(telemetry.SpanAttrBatchID, batchID),
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(docs)),
	)
	defer span.End()

	start := time.Now()
	logger.L(ctx).Info("Batch started",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", s.cfg.BatchConcurrency),
	)

	results := make([]Result, len(docs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.BatchConcurrency)
	for i := range docs {
		group.Go(func() error {
			results[i] = s.process(groupCtx, docs[i])
			s.publish(groupCtx, batchID, i, &results[i])
			return nil
		})
	}
	_ = group.Wait()

	elapsed := time.Since(start)
	summary := Summarize(batchID, results, elapsed, s.cfg.Policy.LowConfidenceThreshold)
	s.metrics.RecordBatch(ctx, summary.Total, summary.AutoPostCount, elapsed)

	out := &BatchResult{
		BatchID: batchID,
		Results: results,
		Summary: summary,
	}
	if s.sink != nil {
		key, err := s.publishSummary(ctx, batchID, summary)
		if err != nil {
			telemetry.RecordError(span, err)
			logger.L(ctx).Error("Failed to publish batch summary", zap.Error(err))
		} else {
			out.SummaryKey = key
		}
	}

	telemetry.SetAttributes(span,
		"invoice.batch.succeeded", summary.Succeeded,
		"invoice.batch.failed", summary.Failed,
	)
	logger.L(ctx).Info("Batch complete",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("auto_post", summary.AutoPostCount),
		zap.Int("needs_review", summary.NeedsReviewCount),
		zap.Duration("duration", elapsed),
	)
	return out, nil
}

// publish writes the audit record to the sink at most once per content.
// index is the document's position in its batch, or -1 outside a batch.
// The idempotency key is doc_id plus the record fingerprint, so an edited
// document is published again while an identical re-run is skipped.
func (s *Service) publish(ctx context.Context, batchID string, index int, res *Result) {
	if s.sink == nil {
		res.Publish = PublishSkipped
		return
	}

	docID := res.DocID
	switch {
	case docID != "":
	case index < 0:
		docID = "unidentified"
	default:
		docID = fmt.Sprintf("unidentified-%d", index)
	}
	ctx = logger.WithDocID(ctx, docID)

	data, err := res.Record.Marshal()
	if err != nil {
		s.publishFailed(ctx, res, fmt.Errorf("failed to marshal audit record: %w", err))
		return
	}

	var claimKey string
	if s.idempotency != nil {
		fingerprint, err := res.Record.Fingerprint()
		if err != nil {
			s.publishFailed(ctx, res, fmt.Errorf("failed to fingerprint audit record: %w", err))
			return
		}
		claimKey = docID + ":" + fingerprint
		claimed, err := s.idempotency.Claim(ctx, claimKey, s.idempotencyTTL)
		if err != nil {
			s.publishFailed(ctx, res, fmt.Errorf("failed to claim audit record: %w", err))
			return
		}
		if !claimed {
			res.Publish = PublishDuplicate
			s.metrics.RecordDuplicate(ctx, res.Vendor.String())
			logger.L(ctx).Info("Audit record already published, skipping")
			return
		}
	}

	key := storage.AuditKey(s.prefix, batchID, index, docID)
	if err := s.sink.PutObject(ctx, key, data, recordContentType); err != nil {
		if claimKey != "" {
			if relErr := s.idempotency.Release(ctx, claimKey); relErr != nil {
				logger.L(ctx).Warn("Failed to release idempotency claim", zap.Error(relErr))
			}
		}
		s.publishFailed(ctx, res, fmt.Errorf("failed to store audit record: %w", err))
		return
	}

	res.Publish = PublishPublished
	res.PublishKey = key
}

func (s *Service) publishFailed(ctx context.Context, res *Result, err error) {
	res.Publish = PublishFailed
	res.PublishError = err
	logger.L(ctx).Error("Failed to publish audit record", zap.Error(err))
}

func (s *Service) publishSummary(ctx context.Context, batchID string, summary BatchSummary) (string, error) {
	data, err := summary.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch summary: %w", err)
	}
	key := storage.SummaryKey(s.prefix, batchID)
	if err := s.sink.PutObject(ctx, key, data, recordContentType); err != nil {
		return "", fmt.Errorf("failed to store batch summary: %w", err)
	}
	return key, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordStage(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordRouted(context.Context, string, string, float64, []string) {}
func (noopMetrics) RecordFailure(context.Context, string, string, string) {}
func (noopMetrics) RecordDuplicate(context.Context, string) {}
func (noopMetrics) RecordBatch(context.Context, int, int, time.Duration) {}
