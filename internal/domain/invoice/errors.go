package invoice

import (
	"errors"
	"fmt"

	"github.com/erp/invoicerouter/internal/domain/shared"
)

const (
	CodeNormalizationError   = "NORMALIZATION_ERROR"
	CodeValidationCheckError = "VALIDATION_CHECK_ERROR"
)

// NormalizationError reports a vendor document that cannot be turned into
// a canonical invoice at all (no doc_id, malformed field map, unknown
// vendor). It halts that document only.
type NormalizationError struct {
	*shared.DomainError
	DocID string
}

// NewNormalizationError creates a NormalizationError
func NewNormalizationError(docID, message string) *NormalizationError {
	return &NormalizationError{
		DomainError: shared.NewDomainError(CodeNormalizationError, message),
		DocID:       docID,
	}
}

// WrapNormalizationError creates a NormalizationError that keeps its cause
func WrapNormalizationError(docID, message string, cause error) *NormalizationError {
	return &NormalizationError{
		DomainError: shared.WrapDomainError(CodeNormalizationError, message, cause),
		DocID:       docID,
	}
}

// Unwrap exposes the embedded DomainError so errors.As can reach it
func (e *NormalizationError) Unwrap() error {
	return e.DomainError
}

// IsNormalizationError reports whether err is or wraps a NormalizationError
func IsNormalizationError(err error) bool {
	var ne *NormalizationError
	return errors.As(err, &ne)
}

// ValidationCheckError describes a check that could not be evaluated
// because its input was malformed. The Validator never returns it; it is
// rendered into the failed check's detail.
type ValidationCheckError struct {
	*shared.DomainError
	Check CheckName
	Field FieldName
}

// Unwrap exposes the embedded DomainError so errors.As can reach it
func (e *ValidationCheckError) Unwrap() error {
	return e.DomainError
}

func newValidationCheckError(check CheckName, field FieldName, cause string) *ValidationCheckError {
	return &ValidationCheckError{
		DomainError: shared.NewDomainError(
			CodeValidationCheckError,
			fmt.Sprintf("%s cannot be evaluated: %s %s", check, field, cause),
		),
		Check: check,
		Field: field,
	}
}
