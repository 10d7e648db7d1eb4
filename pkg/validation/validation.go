package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "gatekeeper/pkg/domain-errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(fieldName)
	return v
}

// fieldName reports fields by their wire name: the query tag for query schemas,
// the json tag for bodies, the lowercased Go name otherwise.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"query", "json"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return strings.ToLower(f.Name)
}

// FieldError is a single per-field validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is the full list of field failures for one payload.
type Errors struct {
	Fields []FieldError
}

func (e *Errors) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the validation code so callers can match with dErrors.HasCode.
func (e *Errors) Unwrap() error {
	return &dErrors.Error{Code: dErrors.CodeValidation, Message: e.Error()}
}

// Validate validates a struct using the default validator.
// On failure it returns *Errors carrying every failing field.
func Validate(req any) error {
	err := defaultValidator.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return dErrors.New(dErrors.CodeValidation, "invalid request")
	}
	out := &Errors{Fields: make([]FieldError, 0, len(validationErrs))}
	for _, fe := range validationErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe),
			Message: ErrorMessage(fe),
		})
	}
	return out
}

// FieldErrors extracts the field list from a validation failure.
func FieldErrors(err error) []FieldError {
	var e *Errors
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// fieldPath strips the root struct name from the namespace ("Inquiry.contact.email" -> "contact.email").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// ErrorMessage converts a single validator failure into a human-readable message.
func ErrorMessage(fe validator.FieldError) string {
	field := fieldPath(fe)

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "url":
		return fmt.Sprintf("%s must be a valid url", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid uuid", field)
	case "e164":
		return fmt.Sprintf("%s must be a valid phone number", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
