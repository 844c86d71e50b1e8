package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/erp/invoicerouter/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// TagVendorKind validates that a string names a supported vendor
const TagVendorKind = "vendor_kind"

// SetupValidator registers the custom tags on gin's validator and makes
// validation errors report JSON field names. Call it before serving.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation(TagVendorKind, func(fl validator.FieldLevel) bool {
		return invoice.VendorKind(fl.Field().String()).IsValid()
	})
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// FormatValidationErrors turns validator errors into the standard
// validation error response, one detail per failed field
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		details = make([]dto.ValidationDetail, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			details = append(details, dto.ValidationDetail{
				Field:   fe.Field(),
				Message: validationMessage(fe),
			})
		}
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "max":
		if fe.Kind() == reflect.String {
			return "Must be at most " + fe.Param() + " characters"
		}
		return "Must be at most " + fe.Param()
	case "oneof":
		return "Must be one of: " + fe.Param()
	case TagVendorKind:
		kinds := make([]string, 0, len(invoice.AllVendorKinds()))
		for _, k := range invoice.AllVendorKinds() {
			kinds = append(kinds, k.String())
		}
		return "Unsupported vendor, expected one of: " + strings.Join(kinds, ", ")
	}
	return "Invalid value"
}
