package invoice

// Outcome is the routing destination of a document
type Outcome string

const (
	OutcomeAutoPost    Outcome = "AUTO_POST"
	OutcomeNeedsReview Outcome = "NEEDS_REVIEW"
)

// String returns the outcome
func (o Outcome) String() string {
	return string(o)
}

// ReasonCode explains why a document was flagged
type ReasonCode string

const (
	ReasonMissingRequiredFields ReasonCode = "MISSING_REQUIRED_FIELDS"
	ReasonInvalidDate           ReasonCode = "INVALID_DATE"
	ReasonInvalidCurrency       ReasonCode = "INVALID_CURRENCY"
	ReasonTotalMismatch         ReasonCode = "TOTAL_MISMATCH"
	ReasonLowConfidence         ReasonCode = "LOW_CONFIDENCE"
	ReasonHighTotal             ReasonCode = "HIGH_TOTAL"
	ReasonMissingPO             ReasonCode = "MISSING_PO"
)

// String returns the reason code
func (r ReasonCode) String() string {
	return string(r)
}

var checkReasons = map[CheckName]ReasonCode{
	CheckRequiredFields:      ReasonMissingRequiredFields,
	CheckDateFormat:          ReasonInvalidDate,
	CheckCurrencyKnown:       ReasonInvalidCurrency,
	CheckReconciliation:      ReasonTotalMismatch,
	CheckConfidenceThreshold: ReasonLowConfidence,
	CheckHighTotal:           ReasonHighTotal,
	CheckMissingPO:           ReasonMissingPO,
}

// ReasonFor returns the reason code emitted when the check fails
func ReasonFor(check CheckName) (ReasonCode, bool) {
	r, ok := checkReasons[check]
	return r, ok
}

// RoutingDecision is the final outcome for one document
type RoutingDecision struct {
	Outcome     Outcome      `json:"outcome"`
	Confidence  float64      `json:"confidence"`
	ReasonCodes []ReasonCode `json:"reason_codes"`
}

// HasReason reports whether the decision carries the reason code
func (d RoutingDecision) HasReason(code ReasonCode) bool {
	for _, r := range d.ReasonCodes {
		if r == code {
			return true
		}
	}
	return false
}

// Router turns a validation report into a routing decision
type Router struct{}

// NewRouter creates a Router
func NewRouter() *Router {
	return &Router{}
}

// Route never fails. A document is auto-posted only when every blocking
// check passed and the high-total flag is not raised.
func (r *Router) Route(inv CanonicalInvoice, report ValidationReport) RoutingDecision {
	reasons := make([]ReasonCode, 0, len(report.Checks))
	seen := make(map[ReasonCode]bool, len(report.Checks))
	for _, c := range report.Checks {
		if c.Passed {
			continue
		}
		code, ok := checkReasons[c.Name]
		if !ok || seen[code] {
			continue
		}
		seen[code] = true
		reasons = append(reasons, code)
	}

	outcome := OutcomeNeedsReview
	if report.Passed && !report.Flagged(CheckHighTotal) {
		outcome = OutcomeAutoPost
	}

	return RoutingDecision{
		Outcome:     outcome,
		Confidence:  RequiredFieldConfidence(inv),
		ReasonCodes: reasons,
	}
}

// RequiredFieldConfidence is the minimum confidence among present required
// fields. A present field without a confidence counts as 0. Returns 0 when
// no required field is present.
func RequiredFieldConfidence(inv CanonicalInvoice) float64 {
	var minConf float64
	found := false
	for _, name := range RequiredFields() {
		info, _ := inv.FieldInfo(name)
		if !info.Present {
			continue
		}
		c := 0.0
		if info.Confidence != nil {
			c = *info.Confidence
		}
		if !found || c < minConf {
			minConf = c
			found = true
		}
	}
	return minConf
}
