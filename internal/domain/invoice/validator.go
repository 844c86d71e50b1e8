package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erp/invoicerouter/internal/domain/shared/valueobject"
)

// CheckName identifies a validation check
type CheckName string

const (
	CheckRequiredFields      CheckName = "required_fields_present"
	CheckDateFormat          CheckName = "date_format_valid"
	CheckCurrencyKnown       CheckName = "currency_known"
	CheckReconciliation      CheckName = "reconciliation"
	CheckConfidenceThreshold CheckName = "confidence_threshold"
	CheckHighTotal           CheckName = "high_total_review"
	CheckMissingPO           CheckName = "missing_po"
)

// String returns the check name
func (c CheckName) String() string {
	return string(c)
}

// AllChecks returns every check in evaluation order
func AllChecks() []CheckName {
	return []CheckName{
		CheckRequiredFields,
		CheckDateFormat,
		CheckCurrencyKnown,
		CheckReconciliation,
		CheckConfidenceThreshold,
		CheckHighTotal,
		CheckMissingPO,
	}
}

// CheckResult is the outcome of a single check. Advisory checks have
// Blocking false; a failed advisory check is a flag, not a rejection.
type CheckResult struct {
	Name     CheckName
	Passed   bool
	Detail   *string
	Blocking bool
	Skipped  bool
}

// ValidationReport lists every check in evaluation order.
// Passed is true iff every blocking check passed.
type ValidationReport struct {
	Passed bool
	Checks []CheckResult
}

// Check returns the result for a named check
func (r ValidationReport) Check(name CheckName) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Flagged reports whether the named check ran and did not pass
func (r ValidationReport) Flagged(name CheckName) bool {
	c, ok := r.Check(name)
	return ok && !c.Passed
}

// Failed returns the checks that did not pass, in report order
func (r ValidationReport) Failed() []CheckResult {
	var failed []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

type checkJSON struct {
	Passed bool    `json:"passed"`
	Detail *string `json:"detail"`
}

// MarshalJSON renders {"passed": bool, "checks": {name: {passed, detail}}}
// with checks in evaluation order.
func (r ValidationReport) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"passed":`)
	if r.Passed {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	buf.WriteString(`,"checks":{`)
	for i, c := range r.Checks {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(c.Name))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(checkJSON{Passed: c.Passed, Detail: c.Detail})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// Validator applies the finance checks of a Policy to canonical invoices.
// It is safe for concurrent use.
type Validator struct {
	policy Policy
}

// NewValidator creates a Validator holding a private copy of policy
func NewValidator(policy Policy) *Validator {
	return &Validator{policy: policy.Clone()}
}

// Policy returns a copy of the validator's policy
func (v *Validator) Policy() Policy {
	return v.policy.Clone()
}

// Validate runs every check. It never returns an error: checks that cannot
// be evaluated are reported as failed with a detail.
func (v *Validator) Validate(inv CanonicalInvoice) ValidationReport {
	checks := []CheckResult{
		v.requiredFields(inv),
		v.dateFormat(inv),
		v.currencyKnown(inv),
		v.reconciliation(inv),
		v.confidenceThreshold(inv),
		v.highTotal(inv),
		v.missingPO(inv),
	}

	passed := true
	for _, c := range checks {
		if c.Blocking && !c.Passed {
			passed = false
		}
	}
	return ValidationReport{Passed: passed, Checks: checks}
}

func pass(name CheckName, blocking bool) CheckResult {
	return CheckResult{Name: name, Passed: true, Blocking: blocking}
}

func fail(name CheckName, blocking bool, detail string) CheckResult {
	return CheckResult{Name: name, Passed: false, Blocking: blocking, Detail: &detail}
}

func skip(name CheckName, blocking bool, detail string) CheckResult {
	return CheckResult{Name: name, Passed: true, Blocking: blocking, Skipped: true, Detail: &detail}
}

func (v *Validator) requiredFields(inv CanonicalInvoice) CheckResult {
	var missing []string
	for _, name := range RequiredFields() {
		info, _ := inv.FieldInfo(name)
		if !info.Present {
			missing = append(missing, name.String())
		}
	}
	if len(missing) > 0 {
		return fail(CheckRequiredFields, true, "missing: "+strings.Join(missing, ", "))
	}
	return pass(CheckRequiredFields, true)
}

func (v *Validator) dateFormat(inv CanonicalInvoice) CheckResult {
	if inv.InvoiceDate.Value == nil {
		return skip(CheckDateFormat, true, "skipped: invoice_date absent")
	}
	if !IsISODate(*inv.InvoiceDate.Value) {
		return fail(CheckDateFormat, true,
			fmt.Sprintf("invoice_date %q is not an ISO-8601 date", *inv.InvoiceDate.Value))
	}
	return pass(CheckDateFormat, true)
}

func (v *Validator) currencyKnown(inv CanonicalInvoice) CheckResult {
	blocking := v.policy.UnknownCurrencyBlocking
	if inv.CurrencyCode.Value == nil {
		return skip(CheckCurrencyKnown, blocking, "skipped: currency_code absent")
	}
	if !inv.CurrencyCode.Value.IsKnown() {
		return fail(CheckCurrencyKnown, blocking,
			fmt.Sprintf("unrecognized currency %q", inv.CurrencyCode.Value.String()))
	}
	return pass(CheckCurrencyKnown, blocking)
}

func (v *Validator) reconciliation(inv CanonicalInvoice) CheckResult {
	operands := []struct {
		name  FieldName
		field AmountField
	}{
		{FieldSubtotal, inv.Subtotal},
		{FieldTax, inv.Tax},
		{FieldTotal, inv.Total},
	}

	for _, op := range operands {
		if op.field.CoercionError != "" {
			cause := newValidationCheckError(CheckReconciliation, op.name, op.field.CoercionError)
			return fail(CheckReconciliation, true, cause.Error())
		}
	}
	for _, op := range operands {
		if op.field.Value == nil {
			return skip(CheckReconciliation, true, fmt.Sprintf("skipped: %s absent", op.name))
		}
	}

	cur := inv.Currency()
	subtotal := valueobject.Sum(cur, *inv.Subtotal.Value, *inv.Tax.Value)
	total := valueobject.Sum(cur, *inv.Total.Value)
	tolerance := v.policy.ToleranceFor(cur)

	ok, err := subtotal.WithinTolerance(total, tolerance)
	if err != nil {
		cause := newValidationCheckError(CheckReconciliation, FieldTotal, err.Error())
		return fail(CheckReconciliation, true, cause.Error())
	}
	if !ok {
		diff := total.Amount().Sub(subtotal.Amount()).Abs()
		return fail(CheckReconciliation, true, fmt.Sprintf(
			"subtotal + tax = %s but total = %s (difference %s exceeds tolerance %s)",
			subtotal.Amount().String(), total.Amount().String(), diff.String(), tolerance.String()))
	}
	return pass(CheckReconciliation, true)
}

func (v *Validator) confidenceThreshold(inv CanonicalInvoice) CheckResult {
	threshold := v.policy.LowConfidenceThreshold
	var low []string
	for _, name := range RequiredFields() {
		info, _ := inv.FieldInfo(name)
		if !info.Present {
			continue
		}
		switch {
		case info.Confidence == nil:
			low = append(low, fmt.Sprintf("%s (no confidence)", name))
		case *info.Confidence < threshold:
			low = append(low, fmt.Sprintf("%s (%.2f)", name, *info.Confidence))
		}
	}
	if len(low) > 0 {
		return fail(CheckConfidenceThreshold, true,
			fmt.Sprintf("below %.2f: %s", threshold, strings.Join(low, ", ")))
	}
	return pass(CheckConfidenceThreshold, true)
}

func (v *Validator) highTotal(inv CanonicalInvoice) CheckResult {
	if inv.Total.Value != nil && inv.Total.Value.GreaterThan(v.policy.HighTotalThreshold) {
		return fail(CheckHighTotal, false, fmt.Sprintf("total %s exceeds review threshold %s",
			inv.Total.Value.String(), v.policy.HighTotalThreshold.String()))
	}
	return pass(CheckHighTotal, false)
}

func (v *Validator) missingPO(inv CanonicalInvoice) CheckResult {
	if inv.PurchaseOrder.Value == nil {
		return fail(CheckMissingPO, v.policy.MissingPOBlocking, "purchase_order absent")
	}
	return pass(CheckMissingPO, v.policy.MissingPOBlocking)
}
