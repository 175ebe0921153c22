// Package validate checks values against go-playground/validator struct tags
// and reports failures as field-scoped ValidationErrors named after the JSON
// field names callers see on the wire.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// FieldError describes one offending field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Field + " " + f.Message
}

// ValidationError is a local, pre-network failure enumerating every
// offending field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a failure for field.
func (e *ValidationError) Add(field, rule, param, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Rule: rule, Param: param, Message: message})
}

// Has reports whether field failed any rule.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Field(field)
	return ok
}

// Field returns the first failure recorded for name.
func (e *ValidationError) Field(name string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldError{}, false
}

// Names returns the offending field names in the order they were recorded.
func (e *ValidationError) Names() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// Err returns e when it holds at least one failure and nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// AsValidation extracts a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// validate is the shared validator instance.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names ("minGradient") rather than Go names ("MinGradient").
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	//nolint:errcheck // RegisterValidation only fails for an empty tag
	v.RegisterValidation("absurl", isAbsoluteURL)

	return v
}

// isAbsoluteURL accepts http and https URLs with a host.
func isAbsoluteURL(fl validator.FieldLevel) bool {
	return IsAbsoluteURL(fl.Field().String())
}

// IsAbsoluteURL reports whether raw is a well-formed absolute http(s) URL.
func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Struct validates s using its validate tags.
func Struct(s any) error {
	return convert(validate.Struct(s))
}

// Var validates a single value against tag and reports failures under field.
func Var(field string, value any, tag string) error {
	err := convert(validate.Var(value, tag))
	if verr, ok := AsValidation(err); ok {
		for i := range verr.Fields {
			verr.Fields[i].Field = field
		}
	}
	return err
}

func convert(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), fe.Tag(), fe.Param(), message(fe))
	}
	return out
}

// message renders a human-readable description of a rule failure.
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "absurl":
		return "must be an absolute http(s) URL"
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
