package api

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var httpURLPattern = regexp.MustCompile(`(?i)^https?://`)

// manifestQuery is the validated form of GET /manifest.
type manifestQuery struct {
	URL string `validate:"required,httpurl"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return httpURLPattern.MatchString(fl.Field().String())
	})
	return v
}

// validationMessage turns validator errors into a short client message.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	switch fieldErrs[0].Tag() {
	case "required":
		return `"url" is required`
	case "httpurl":
		return `"url" must be an http or https URL`
	default:
		return "invalid url"
	}
}
