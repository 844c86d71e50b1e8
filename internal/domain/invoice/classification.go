package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Category groups invoices by the kind of service billed
type Category string

const (
	CategoryMarketing  Category = "Marketing & Advertising"
	CategoryFinancial  Category = "Financial Services"
	CategoryMaterials  Category = "Raw Materials & Supplies"
	CategoryTechnology Category = "Technology & Software"
	CategoryUtilities  Category = "Utilities"
	CategoryLegal      Category = "Legal Services"
	CategoryGeneral    Category = "General Services"
)

// Priority ranks invoices by amount
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Urgency is the payment urgency derived from the total
type Urgency string

const (
	UrgencyUrgent Urgency = "URGENT"
	UrgencyNormal Urgency = "NORMAL"
	UrgencyLow    Urgency = "LOW"
)

// RiskLevel summarises how much scrutiny a document needs
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Quality grades extraction quality from field confidences
type Quality string

const (
	QualityExcellent Quality = "EXCELLENT"
	QualityGood      Quality = "GOOD"
	QualityFair      Quality = "FAIR"
	QualityPoor      Quality = "POOR"
	QualityUnknown   Quality = "UNKNOWN"
)

// CategoryRule maps supplier name keywords to a category
type CategoryRule struct {
	Category Category
	Keywords []string
}

// DefaultCategoryRules is evaluated in order; the first match wins
var DefaultCategoryRules = []CategoryRule{
	{Category: CategoryMarketing, Keywords: []string{"advertising", "marketing", "media"}},
	{Category: CategoryFinancial, Keywords: []string{"finance", "bank", "capital", "consulting"}},
	{Category: CategoryMaterials, Keywords: []string{"material", "supply", "parts", "equipment"}},
	{Category: CategoryTechnology, Keywords: []string{"software", "saas", "tech", "cloud"}},
	{Category: CategoryUtilities, Keywords: []string{"utility", "electric", "water", "gas"}},
	{Category: CategoryLegal, Keywords: []string{"legal", "attorney", "law"}},
}

var (
	priorityCritical = decimal.NewFromInt(50000)
	priorityHigh     = decimal.NewFromInt(10000)
	priorityMedium   = decimal.NewFromInt(1000)

	urgencyUrgent = decimal.NewFromInt(100000)
	urgencyNormal = decimal.NewFromInt(50000)

	riskMediumTotal = decimal.NewFromInt(100000)
)

// Insights are business annotations attached to the audit record. They
// never influence routing.
type Insights struct {
	Category       Category  `json:"category"`
	Priority       Priority  `json:"priority"`
	Urgency        Urgency   `json:"urgency"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Quality        Quality   `json:"document_quality"`
	MeanConfidence *float64  `json:"mean_confidence"`
}

// Classifier derives Insights from a processed document
type Classifier struct {
	rules         []CategoryRule
	lowConfidence float64
}

// NewClassifier creates a Classifier. A nil rule table uses
// DefaultCategoryRules.
func NewClassifier(rules []CategoryRule) *Classifier {
	if rules == nil {
		rules = DefaultCategoryRules
	}
	copied := make([]CategoryRule, len(rules))
	copy(copied, rules)
	return &Classifier{rules: copied, lowConfidence: DefaultLowConfidenceThreshold}
}

// WithLowConfidenceThreshold returns a copy that rates a total below
// threshold as high risk. Pass the routing policy's threshold so insights
// agree with the routing decision.
func (c *Classifier) WithLowConfidenceThreshold(threshold float64) *Classifier {
	out := *c
	out.lowConfidence = threshold
	return &out
}

// Classify computes insights for an invoice and its validation report
func (c *Classifier) Classify(inv CanonicalInvoice, report ValidationReport) Insights {
	mean := meanRequiredConfidence(inv)
	return Insights{
		Category:       c.category(inv),
		Priority:       priorityFor(inv.Total.Value),
		Urgency:        urgencyFor(inv.Total.Value),
		RiskLevel:      riskFor(inv, report, c.lowConfidence),
		Quality:        qualityFor(mean),
		MeanConfidence: mean,
	}
}

func (c *Classifier) category(inv CanonicalInvoice) Category {
	if inv.SupplierName.Value == nil {
		return CategoryGeneral
	}
	supplier := strings.ToLower(*inv.SupplierName.Value)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(supplier, kw) {
				return rule.Category
			}
		}
	}
	return CategoryGeneral
}

func priorityFor(total *decimal.Decimal) Priority {
	switch {
	case total == nil || total.IsZero():
		return PriorityMedium
	case total.GreaterThan(priorityCritical):
		return PriorityCritical
	case total.GreaterThan(priorityHigh):
		return PriorityHigh
	case total.GreaterThan(priorityMedium):
		return PriorityMedium
	}
	return PriorityLow
}

func urgencyFor(total *decimal.Decimal) Urgency {
	switch {
	case total == nil:
		return UrgencyLow
	case total.GreaterThan(urgencyUrgent):
		return UrgencyUrgent
	case total.GreaterThan(urgencyNormal):
		return UrgencyNormal
	}
	return UrgencyLow
}

func riskFor(inv CanonicalInvoice, report ValidationReport, lowConfidence float64) RiskLevel {
	if !report.Passed {
		return RiskHigh
	}
	if inv.Total.Confidence != nil && *inv.Total.Confidence < lowConfidence {
		return RiskHigh
	}
	if inv.Total.Value != nil && inv.Total.Value.GreaterThan(riskMediumTotal) {
		return RiskMedium
	}
	return RiskLow
}

func qualityFor(mean *float64) Quality {
	switch {
	case mean == nil:
		return QualityUnknown
	case *mean >= 0.95:
		return QualityExcellent
	case *mean >= 0.85:
		return QualityGood
	case *mean >= 0.70:
		return QualityFair
	}
	return QualityPoor
}

func meanRequiredConfidence(inv CanonicalInvoice) *float64 {
	var sum float64
	n := 0
	for _, name := range RequiredFields() {
		info, _ := inv.FieldInfo(name)
		if info.Present && info.Confidence != nil {
			sum += *info.Confidence
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
