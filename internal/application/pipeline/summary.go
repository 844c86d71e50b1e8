package pipeline

import (
	"encoding/json"
	"time"

	"github.com/erp/invoicerouter/internal/domain/invoice"
)

// ConfidenceStats describes the total field confidence across routed documents
type ConfidenceStats struct {
	Average            *float64 `json:"average"`
	Min                *float64 `json:"min"`
	Max                *float64 `json:"max"`
	LowConfidenceCount int      `json:"low_confidence_count"`
}

// PublishStats counts audit record publishing outcomes
type PublishStats struct {
	Published  int `json:"published"`
	Duplicates int `json:"duplicates"`
	Failures   int `json:"failures"`
}

// BatchSummary aggregates the results of one batch. Rates over routed
// documents use the number of successes as denominator.
type BatchSummary struct {
	BatchID            string             `json:"batch_id"`
	Total              int                `json:"total_documents"`
	Succeeded          int                `json:"successful"`
	Failed             int                `json:"failed"`
	SuccessRate        float64            `json:"success_rate"`
	AutoPostCount      int                `json:"auto_post_count"`
	NeedsReviewCount   int                `json:"needs_review_count"`
	AutoPostRate       float64            `json:"auto_post_rate"`
	NeedsReviewRate    float64            `json:"needs_review_rate"`
	ValidationPassRate float64            `json:"validation_pass_rate"`
	ReasonCodeCounts   map[string]int     `json:"reason_code_counts"`
	FailureCodeCounts  map[string]int     `json:"failure_code_counts"`
	TotalConfidence    ConfidenceStats    `json:"total_confidence"`
	ExtractionRates    map[string]float64 `json:"field_extraction_rates"`
	Publishing         PublishStats       `json:"publishing"`
	DurationMS         int64              `json:"duration_ms"`
}

// Marshal renders the summary as indented JSON
func (s BatchSummary) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Summarize aggregates batch results. It does not depend on result order.
func Summarize(batchID string, results []Result, elapsed time.Duration, lowConfidence float64) BatchSummary {
	summary := BatchSummary{
		BatchID:           batchID,
		Total:             len(results),
		ReasonCodeCounts:  make(map[string]int),
		FailureCodeCounts: make(map[string]int),
		ExtractionRates:   make(map[string]float64),
		DurationMS:        elapsed.Milliseconds(),
	}

	var (
		validationPassed int
		confidenceSum    float64
		confidenceCount  int
		minConfidence    float64
		maxConfidence    float64
		extracted        = make(map[invoice.FieldName]int)
	)

	for _, res := range results {
		switch res.Publish {
		case PublishPublished:
			summary.Publishing.Published++
		case PublishDuplicate:
			summary.Publishing.Duplicates++
		case PublishFailed:
			summary.Publishing.Failures++
		}

		if !res.Succeeded() {
			summary.Failed++
			code := CodeProcessingError
			if res.Record.ProcessingError != nil {
				code = res.Record.ProcessingError.Code
			}
			summary.FailureCodeCounts[code]++
			continue
		}

		summary.Succeeded++
		switch res.Decision.Outcome {
		case invoice.OutcomeAutoPost:
			summary.AutoPostCount++
		case invoice.OutcomeNeedsReview:
			summary.NeedsReviewCount++
		}
		for _, code := range res.Decision.ReasonCodes {
			summary.ReasonCodeCounts[code.String()]++
		}
		if res.Report != nil && res.Report.Passed {
			validationPassed++
		}

		if res.Invoice == nil {
			continue
		}
		for _, name := range invoice.ScalarFields() {
			if info, _ := res.Invoice.FieldInfo(name); info.Present {
				extracted[name]++
			}
		}
		if c := res.Invoice.Total.Confidence; res.Invoice.Total.Value != nil && c != nil {
			if confidenceCount == 0 || *c < minConfidence {
				minConfidence = *c
			}
			if confidenceCount == 0 || *c > maxConfidence {
				maxConfidence = *c
			}
			confidenceSum += *c
			confidenceCount++
			if *c < lowConfidence {
				summary.TotalConfidence.LowConfidenceCount++
			}
		}
	}

	summary.SuccessRate = ratio(summary.Succeeded, summary.Total)
	summary.AutoPostRate = ratio(summary.AutoPostCount, summary.Succeeded)
	summary.NeedsReviewRate = ratio(summary.NeedsReviewCount, summary.Succeeded)
	summary.ValidationPassRate = ratio(validationPassed, summary.Succeeded)

	if confidenceCount > 0 {
		avg := confidenceSum / float64(confidenceCount)
		summary.TotalConfidence.Average = &avg
		summary.TotalConfidence.Min = &minConfidence
		summary.TotalConfidence.Max = &maxConfidence
	}
	for _, name := range invoice.ScalarFields() {
		summary.ExtractionRates[name.String()] = ratio(extracted[name], summary.Succeeded)
	}

	return summary
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
