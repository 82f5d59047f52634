package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/snippetbox/internal/apperror"
)

// validate is shared by both services. A *validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = newValidator()

// fieldAliases names struct fields that carry no form tag.
var fieldAliases = map[string]string{
	"PasswordHash": "password",
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("form"), ","); name != "" && name != "-" {
			return name
		}
		if alias, ok := fieldAliases[f.Name]; ok {
			return alias
		}
		return strings.ToLower(f.Name)
	})
	return v
}

// check runs the validate tags on v and converts failures into
// apperror.FieldErrors keyed by form field, one message per field.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating %T: %w", v, err)
	}

	fields := apperror.FieldErrors{}
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return fields
}

// message renders one failed rule as the sentence shown under the field.
func message(fe validator.FieldError) string {
	label := label(fe.Field())
	switch fe.Tag() {
	case "required", "required_without":
		return label + " is required"
	case "alphanum":
		return label + " must be alphanumeric"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

func label(field string) string {
	if field == "" {
		return field
	}
	r := []rune(field)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
