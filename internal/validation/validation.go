// Package validation wraps go-playground/validator and reports the first failing field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var messages = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
}

// Struct validates s and returns a *errors.ValidationError for the first
// failing field, or nil.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &apperrors.ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	return &apperrors.ValidationError{Field: fe.Field(), Message: message(fe)}
}

func message(fe validator.FieldError) string {
	tmpl, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	if strings.Count(tmpl, "%s") == 2 {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf(tmpl, fe.Field())
}
