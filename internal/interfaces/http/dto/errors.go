package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for request validation errors
	ErrCodeValidation = "ERR_VALIDATION"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeInvalidPayload is used when a vendor payload cannot be decoded
	ErrCodeInvalidPayload = "ERR_INVALID_PAYLOAD"
	// ErrCodeRequestTooLarge is used when the body exceeds the size limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Pipeline error codes
const (
	// ErrCodeNormalization is used when a document cannot be normalized
	ErrCodeNormalization = "ERR_NORMALIZATION"
	// ErrCodeProcessing is used for other per-document processing failures
	ErrCodeProcessing = "ERR_PROCESSING"
	// ErrCodeBatchTooLarge is used when a batch exceeds max_batch_size
	ErrCodeBatchTooLarge = "ERR_BATCH_TOO_LARGE"
	// ErrCodeEmptyBatch is used when a batch has no documents
	ErrCodeEmptyBatch = "ERR_EMPTY_BATCH"
	// ErrCodeCancelled is used when the request was cancelled mid-processing
	ErrCodeCancelled = "ERR_CANCELLED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation: http.StatusBadRequest,

	// Input errors
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInvalidPayload:  http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Pipeline errors -> 422 Unprocessable Entity
	ErrCodeNormalization: http.StatusUnprocessableEntity,
	ErrCodeProcessing:    http.StatusUnprocessableEntity,
	ErrCodeBatchTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeEmptyBatch:    http.StatusBadRequest,
	ErrCodeCancelled:     http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain and pipeline error codes to API codes
var DomainErrorCodeMapping = map[string]string{
	"INVALID_INPUT":       ErrCodeBadRequest,
	"INVALID_PAYLOAD":     ErrCodeInvalidPayload,
	"NORMALIZATION_ERROR": ErrCodeNormalization,
	"PROCESSING_ERROR":    ErrCodeProcessing,
	"INTERNAL_ERROR":      ErrCodeInternal,
	"BATCH_TOO_LARGE":     ErrCodeBatchTooLarge,
	"EMPTY_BATCH":         ErrCodeEmptyBatch,
	"CANCELLED":           ErrCodeCancelled,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
