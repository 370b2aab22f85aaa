package validator

import (
	"github.com/go-playground/validator/v10"

	ierr "github.com/vidinfra/subflow/internal/errors"
)

var validate = validator.New()

// GetValidator exposes the shared instance for custom rule registration.
func GetValidator() *validator.Validate {
	return validate
}

// ValidateRequest checks a request struct against its validate tags and wraps
// field failures into a validation error with per-field details.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, err := range validateErrs {
				details[err.Field()] = err.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
